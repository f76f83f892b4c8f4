// Package server is the HTTP front end that turns transform requests into
// engine commands and streams results back.
package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"xslhost/internal/cache"
	"xslhost/internal/config"
	"xslhost/internal/host"
	"xslhost/internal/xsltengine"
	"xslhost/pkg/engine"
)

// Server accepts transform requests over HTTP and drives the engine
// registry. It is safe for concurrent use; per-engine serialization is the
// registry's business.
type Server struct {
	mu       sync.RWMutex
	config   *config.Config
	registry *host.Registry
	cache    *cache.Cache
	version  string
}

func New(cfg *config.Config, registry *host.Registry, version string) (*Server, error) {
	s := &Server{
		config:   cfg,
		registry: registry,
		version:  version,
	}
	if cfg.CacheEnabled() {
		c, err := cache.New(cfg.Redis, time.Duration(cfg.CacheTTLSeconds)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("failed to create cache client: %w", err)
		}
		s.cache = c
	}
	return s, nil
}

// UpdateConfig applies a reloaded configuration: engines are reloaded
// through the registry and the cache client is swapped if Redis settings
// changed.
func (s *Server) UpdateConfig(cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.registry.LoadEngines(cfg); err != nil {
		return fmt.Errorf("failed to reload engines: %w", err)
	}

	if s.config.Redis != cfg.Redis {
		var next *cache.Cache
		if cfg.CacheEnabled() {
			c, err := cache.New(cfg.Redis, time.Duration(cfg.CacheTTLSeconds)*time.Second)
			if err != nil {
				return fmt.Errorf("failed to create new cache client: %w", err)
			}
			next = c
		}
		if s.cache != nil {
			if err := s.cache.Close(); err != nil {
				slog.Error("Failed to close old cache client", "error", err)
			}
		}
		s.cache = next
	}

	s.config = cfg
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-XSLHost-Version", s.version)

	if r.URL.Path != "/transform" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.handleTransform(w, r)
}

// transformRequest is the JSON request body. Documents arrive inline or as
// file paths; parameters are an ordered list and may repeat keys.
type transformRequest struct {
	Input          string        `json:"input"`
	InputFile      string        `json:"input_file"`
	Stylesheet     string        `json:"stylesheet"`
	StylesheetFile string        `json:"stylesheet_file"`
	Params         engine.Params `json:"params"`
}

func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cfg := s.config
	resultCache := s.cache
	s.mu.RUnlock()

	engineName := r.URL.Query().Get("engine")
	if engineName == "" {
		engineName = "builtin"
	}
	runner := s.registry.Get(engineName)
	if runner == nil {
		http.Error(w, fmt.Sprintf("unknown engine '%s'", engineName), http.StatusNotFound)
		return
	}

	maxSize := int64(cfg.MaxDocumentSizeMB) * 1024 * 1024
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSize+1))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > maxSize {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	var req transformRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid request JSON", http.StatusBadRequest)
		return
	}

	task, err := buildTask(&req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var key string
	if resultCache != nil {
		key = cache.Key(engineName, task)
		if cached := resultCache.Get(r.Context(), key); cached != nil {
			slog.Info("Serving cached transform", "engine", engineName)
			w.Header().Set("X-XSLHost-Cache", "HIT")
			writeResult(w, &req, cached)
			return
		}
		w.Header().Set("X-XSLHost-Cache", "MISS")
	}

	cmd := engine.NewTransform(task, &engine.CallContext{Port: r.RemoteAddr})
	state, driver := runner.Dispatch(cmd)
	if driver == engine.UnsupportedOperationError {
		http.Error(w, "engine is shut down", http.StatusServiceUnavailable)
		return
	}
	if state != engine.Ok {
		slog.Error("Transform failed", "engine", engineName, "state", state.String())
		http.Error(w, fmt.Sprintf("transform failed: %s", state), statusFor(state))
		return
	}

	result := cmd.Result.Buffer()
	if resultCache != nil {
		resultCache.Set(r.Context(), key, result)
	}
	writeResult(w, &req, result)
}

func buildTask(req *transformRequest) (*engine.Task, error) {
	input, err := documentFrom(req.Input, req.InputFile, "input")
	if err != nil {
		return nil, err
	}
	stylesheet, err := documentFrom(req.Stylesheet, req.StylesheetFile, "stylesheet")
	if err != nil {
		return nil, err
	}
	return &engine.Task{Input: input, Stylesheet: stylesheet, Params: req.Params}, nil
}

func documentFrom(inline, file, field string) (*engine.InputDocument, error) {
	switch {
	case inline != "" && file != "":
		return nil, fmt.Errorf("%s: provide inline content or a file, not both", field)
	case inline != "":
		return engine.BufferDocument([]byte(inline)), nil
	case file != "":
		return engine.FileDocument(file), nil
	default:
		return nil, fmt.Errorf("%s is required", field)
	}
}

func statusFor(state engine.EngineState) int {
	switch state {
	case engine.XMLParseError, engine.XSLCompileError:
		return http.StatusUnprocessableEntity
	case engine.OutOfMemoryError:
		return http.StatusInsufficientStorage
	default:
		return http.StatusBadGateway
	}
}

func writeResult(w http.ResponseWriter, req *transformRequest, result []byte) {
	w.Header().Set("Content-Type", contentTypeFor(req))
	w.Header().Set("Content-Length", strconv.Itoa(len(result)))
	if _, err := w.Write(result); err != nil {
		slog.Error("Failed to write transform result", "error", err)
	}
}

// contentTypeFor derives the response content type from the stylesheet's
// declared output method. File-based stylesheets are not peeked at; their
// responses default to XML.
func contentTypeFor(req *transformRequest) string {
	if req.Stylesheet == "" {
		return "application/xml; charset=utf-8"
	}
	switch xsltengine.OutputMethod([]byte(req.Stylesheet)) {
	case "html":
		return "text/html; charset=utf-8"
	case "text":
		return "text/plain; charset=utf-8"
	default:
		return "application/xml; charset=utf-8"
	}
}
