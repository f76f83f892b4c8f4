// Package loader resolves engine provider shared objects at runtime.
//
// Loading never panics and never aborts the host: every failure mode is
// captured in the Spec as the platform loader's own diagnostic text plus a
// DriverState classifying which step failed. Tooling downstream pattern
// matches the diagnostic strings ("image not found", "can't map"), so they
// are stored verbatim, never rewritten.
package loader

import (
	"fmt"
	"log/slog"
	"plugin"

	"xslhost/pkg/engine"
)

// Spec names a provider library and, after Load returns, carries either a
// usable engine or a diagnostic. The caller owns the Spec; Load mutates it
// in place. After any non-nil Load exactly one of Engine and Err is set.
type Spec struct {
	// Name is a path or platform-resolvable module name for the shared
	// object. Resolution follows the platform's library search mechanism;
	// this package neither sets nor reads the search path.
	Name string

	// Symbol overrides the factory symbol to resolve. Empty means
	// engine.FactorySymbol.
	Symbol string

	// Engine is the loaded provider on success, nil otherwise.
	Engine engine.Engine

	// Err is the platform loader's diagnostic text on failure, verbatim,
	// possibly spanning multiple lines. Empty on success.
	Err string

	// State classifies the outcome: InitOk, LibraryNotFound,
	// EntryPointNotFound, or InitFailed.
	State engine.DriverState

	handle *plugin.Plugin
}

// Handle returns the open library handle, or nil if loading failed. The
// handle stays live for the engine's lifetime; the platform does not
// support unloading, so retiring the engine simply drops the reference.
func (s *Spec) Handle() *plugin.Plugin {
	if s == nil {
		return nil
	}
	return s.handle
}

// Load opens the shared object named by spec, resolves its factory symbol,
// and invokes it to obtain an engine.
//
// A nil spec is a safe no-op. Otherwise the spec is mutated in place:
// Engine on success, Err plus a classifying State on any failure. Failures
// are never raised as panics; a failed load leaves the host running.
func Load(spec *Spec) {
	if spec == nil {
		return
	}
	spec.Engine = nil
	spec.Err = ""

	lib, err := plugin.Open(spec.Name)
	if err != nil {
		spec.Err = err.Error()
		spec.State = engine.LibraryNotFound
		return
	}

	symbol := spec.Symbol
	if symbol == "" {
		symbol = engine.FactorySymbol
	}
	sym, err := lib.Lookup(symbol)
	if err != nil {
		spec.Err = err.Error()
		spec.State = engine.EntryPointNotFound
		return
	}

	factory, err := asFactory(sym, symbol)
	if err != nil {
		spec.Err = err.Error()
		spec.State = engine.EntryPointNotFound
		return
	}

	eng, err := factory()
	if err != nil {
		spec.Err = err.Error()
		spec.State = engine.InitFailed
		return
	}
	if eng == nil {
		spec.Err = fmt.Sprintf("factory %s in %s returned a nil engine", symbol, spec.Name)
		spec.State = engine.InitFailed
		return
	}

	spec.Engine = eng
	spec.State = engine.InitOk
	spec.handle = lib
	slog.Info("Loaded engine library", "name", spec.Name, "symbol", symbol)
}

// asFactory normalizes the looked-up symbol. Providers may export the
// factory as a function or as a variable of the Factory type; plugin.Lookup
// hands back the former as a bare func value and the latter as a pointer.
func asFactory(sym plugin.Symbol, name string) (engine.Factory, error) {
	switch f := sym.(type) {
	case func() (engine.Engine, error):
		return f, nil
	case engine.Factory:
		return f, nil
	case *engine.Factory:
		return *f, nil
	default:
		return nil, fmt.Errorf("symbol '%s' is not an engine factory (got %T)", name, sym)
	}
}
