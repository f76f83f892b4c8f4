// Package host drives loaded engines: it owns the per-instance lifecycle,
// routes commands through the ABI, and keeps the registry of engines the
// process currently serves.
package host

import (
	"fmt"
	"log/slog"
	"sync"

	"xslhost/internal/config"
	"xslhost/internal/loader"
	"xslhost/pkg/engine"
)

// Runner wraps one engine instance and enforces its lifecycle: a single
// active command at a time, AfterTransform after every Transform, and
// Shutdown effects at most once.
type Runner struct {
	name string
	spec *loader.Spec

	mu   sync.Mutex
	eng  engine.Engine
	stop sync.Once
	done bool
}

// NewRunner wraps an already-initialized engine. spec may be nil for
// in-process engines that were never loaded from a shared object.
func NewRunner(name string, eng engine.Engine, spec *loader.Spec) *Runner {
	return &Runner{name: name, spec: spec, eng: eng}
}

// Name returns the registry name of the engine.
func (r *Runner) Name() string { return r.name }

// Source returns the library path the engine came from, or empty for
// in-process engines.
func (r *Runner) Source() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spec == nil {
		return ""
	}
	return r.spec.Name
}

// Stopped reports whether the engine has been shut down.
func (r *Runner) Stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Dispatch routes one command through the engine. Transform commands run
// Transform and then, unconditionally, AfterTransform; the transform's
// state is what comes back, the cleanup state is informational only. Any
// other command name goes through the engine's generic Command hook.
//
// The returned DriverState is Success when the command was dispatched,
// UnknownCommand when the engine did not recognize it, and
// UnsupportedOperationError when the runner has already been shut down.
// Only one command is ever in flight per runner.
func (r *Runner) Dispatch(cmd *engine.Command) (engine.EngineState, engine.DriverState) {
	if cmd == nil {
		return engine.Error, engine.UnknownCommand
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return engine.Error, engine.UnsupportedOperationError
	}

	if cmd.Name == engine.TransformCommand {
		state := r.eng.Transform(cmd)
		if cleanup := r.eng.AfterTransform(cmd); cleanup != engine.Ok {
			slog.Warn("Engine cleanup reported a problem",
				"engine", r.name, "state", cleanup.String())
		}
		return state, engine.Success
	}

	state := r.eng.Command(cmd)
	if state == engine.Error {
		return state, engine.UnknownCommand
	}
	return state, engine.Success
}

// Shutdown retires the engine. The underlying engine's Shutdown runs at
// most once no matter how many times this is called; afterwards every
// Dispatch is refused and the library handle reference is dropped.
func (r *Runner) Shutdown() {
	r.stop.Do(func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.eng.Shutdown()
		r.eng = nil
		r.spec = nil
		r.done = true
		slog.Info("Engine shut down", "engine", r.name)
	})
}

// EngineInfo describes one registry entry for inventory reporting.
type EngineInfo struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	State string `json:"state"`
}

// Registry is the set of engines the host currently serves, keyed by name.
// Reloads keep engines whose library path is unchanged, load new ones, and
// retire removed ones.
type Registry struct {
	mu       sync.RWMutex
	runners  map[string]*Runner
	builtins map[string]engine.Factory
}

func NewRegistry() *Registry {
	return &Registry{
		runners:  make(map[string]*Runner),
		builtins: make(map[string]engine.Factory),
	}
}

// RegisterBuiltin makes an in-process engine factory available under name.
// Config entries with an empty library path resolve against builtins.
func (g *Registry) RegisterBuiltin(name string, f engine.Factory) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.builtins[name] = f
}

// LoadEngines resolves every engine named in cfg, reusing already-loaded
// instances whose source is unchanged. A library that fails to load is
// logged with its platform diagnostic and skipped; the error returned is
// non-nil only when nothing could be loaded at all.
func (g *Registry) LoadEngines(cfg *config.Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	next := make(map[string]*Runner)
	var failures int

	for _, ec := range cfg.Engines {
		if existing, ok := g.runners[ec.Name]; ok && !existing.Stopped() && existing.Source() == ec.Path {
			next[ec.Name] = existing
			continue
		}

		runner, err := g.startEngine(ec)
		if err != nil {
			slog.Error("Failed to load engine", "engine", ec.Name, "path", ec.Path, "error", err)
			failures++
			continue
		}
		next[ec.Name] = runner
		slog.Info("Loaded engine", "engine", ec.Name, "path", ec.Path)
	}

	// Retire engines dropped from the config.
	for name, runner := range g.runners {
		if _, kept := next[name]; !kept {
			runner.Shutdown()
		}
	}

	g.runners = next
	if len(next) == 0 && failures > 0 {
		return fmt.Errorf("no engine could be loaded (%d failed)", failures)
	}
	return nil
}

func (g *Registry) startEngine(ec config.EngineConfig) (*Runner, error) {
	if ec.Path == "" {
		factory, ok := g.builtins[ec.Name]
		if !ok {
			return nil, fmt.Errorf("no builtin engine registered as '%s'", ec.Name)
		}
		eng, err := factory()
		if err != nil {
			return nil, fmt.Errorf("builtin engine init failed: %w", err)
		}
		return NewRunner(ec.Name, eng, nil), nil
	}

	spec := &loader.Spec{Name: ec.Path, Symbol: ec.Symbol}
	loader.Load(spec)
	if spec.Engine == nil {
		return nil, fmt.Errorf("%s: %s", spec.State, spec.Err)
	}
	return NewRunner(ec.Name, spec.Engine, spec), nil
}

// Get returns the runner registered under name, or nil.
func (g *Registry) Get(name string) *Runner {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.runners[name]
}

// Engines returns an inventory snapshot sorted by nothing in particular;
// callers needing stable output sort it themselves.
func (g *Registry) Engines() []EngineInfo {
	g.mu.RLock()
	defer g.mu.RUnlock()

	infos := make([]EngineInfo, 0, len(g.runners))
	for name, runner := range g.runners {
		state := "ready"
		if runner.Stopped() {
			state = "stopped"
		}
		infos = append(infos, EngineInfo{Name: name, Path: runner.Source(), State: state})
	}
	return infos
}

// ShutdownAll retires every engine in the registry. Safe to call more than
// once; each engine's Shutdown still runs at most once.
func (g *Registry) ShutdownAll() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, runner := range g.runners {
		runner.Shutdown()
	}
}
