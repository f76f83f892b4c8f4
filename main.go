package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"xslhost/internal/config"
	"xslhost/internal/health"
	"xslhost/internal/host"
	"xslhost/internal/server"
	"xslhost/internal/xsltengine"
)

var version string = "<dev>"

// parseLogLevel converts a string log level to slog.Level
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		slog.Warn("Invalid log level, defaulting to info", "level", level)
		return slog.LevelInfo
	}
}

func main() {
	var configFile string
	var addr string
	var logLevel string

	flag.StringVar(&configFile, "config", "config.json", "Path to configuration file")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(logLevel),
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if addr == "" {
		addr = cfg.Listen
	}

	registry := host.NewRegistry()
	registry.RegisterBuiltin("builtin", xsltengine.New)

	var healthServer *health.Server
	if cfg.HealthPort != 0 {
		healthServer = health.New(cfg.HealthPort, registry)
		go func() {
			if err := healthServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Health server failed", "error", err)
			}
		}()
	}

	if err := registry.LoadEngines(cfg); err != nil {
		slog.Error("Failed to load engines", "error", err)
		os.Exit(1)
	}

	transformServer, err := server.New(cfg, registry, version)
	if err != nil {
		slog.Error("Failed to create transform server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:        addr,
		Handler:     transformServer,
		ReadTimeout: time.Duration(cfg.RequestTimeout) * time.Second,
	}

	go func() {
		slog.Info("Starting server", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	if healthServer != nil {
		healthServer.MarkReady()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		switch sig {
		case syscall.SIGHUP:
			slog.Info("Reloading configuration")
			newCfg, err := config.Load(configFile)
			if err != nil {
				slog.Error("Failed to reload configuration", "error", err)
				continue
			}
			if healthServer != nil {
				healthServer.MarkNotReady()
			}
			if err := transformServer.UpdateConfig(newCfg); err != nil {
				slog.Error("Failed to update server configuration", "error", err)
			} else {
				slog.Info("Configuration reloaded successfully")
			}
			if healthServer != nil {
				healthServer.MarkReady()
			}
		case syscall.SIGINT, syscall.SIGTERM:
			slog.Info("Shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(ctx); err != nil {
				slog.Error("Server shutdown failed", "error", err)
			}
			if healthServer != nil {
				if err := healthServer.Stop(); err != nil {
					slog.Error("Health server shutdown failed", "error", err)
				}
			}
			registry.ShutdownAll()
			return
		}
	}
}
