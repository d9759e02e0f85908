package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/QualiaResearchInstitute/indra/field"
	"github.com/QualiaResearchInstitute/indra/kernelspec"
)

const shutdownGrace = 5 * time.Second

type server struct {
	cfg    Config
	hub    *kernelspec.Hub
	logger *zap.Logger
	http   *http.Server
}

func newServer(cfg Config, logger *zap.Logger) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &server{
		cfg:    cfg,
		hub:    kernelspec.NewHub(kernelspec.HubConfig{Initial: cfg.Spec, Logger: logger}),
		logger: logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/spec", s.handleSpec)
	mux.HandleFunc("/simulate", s.handleSimulate)
	s.http = &http.Server{
		Addr:    cfg.Listen,
		Handler: s.logRequests(mux),
	}
	return s
}

// run serves until the context is cancelled, then drains in-flight requests
// within the shutdown grace period.
func (s *server) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if s.cfg.Watch != "" {
		g.Go(func() error {
			return s.watchSpec(ctx)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func writeOK(w http.ResponseWriter, payload map[string]any) {
	payload["status"] = "ok"
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "error",
		"message": message,
	})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.hub.Stats()
	writeOK(w, map[string]any{
		"solver":      field.DefaultSolverName,
		"specVersion": stats.Version,
		"subscribers": stats.Subscribers,
	})
}

// handleSpec serves the live kernel spec. GET returns the current snapshot;
// POST merges a patch through the hub and reports what changed.
func (s *server) handleSpec(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		snap := s.hub.Snapshot()
		writeOK(w, map[string]any{
			"spec":    snap.Spec,
			"version": snap.Version,
		})
	case http.MethodPost:
		var patch kernelspec.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("decode spec patch: %v", err))
			return
		}
		ev := s.hub.Update(patch, kernelspec.UpdateOptions{Source: "rest"})
		if ev == nil {
			snap := s.hub.Snapshot()
			writeOK(w, map[string]any{
				"spec":    snap.Spec,
				"version": snap.Version,
				"changed": []string{},
			})
			return
		}
		writeOK(w, map[string]any{
			"spec":    ev.Spec,
			"version": ev.Version,
			"changed": ev.Changed,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "use GET or POST")
	}
}

// handleSimulate runs one batch lattice to completion. Request dimensions and
// params fall back to the daemon's configuration; the spec patch, if any,
// merges over the live snapshot.
func (s *server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req simRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}
	if req.Width == 0 {
		req.Width = s.cfg.Width
	}
	if req.Height == 0 {
		req.Height = s.cfg.Height
	}
	if req.Params == nil {
		p := s.cfg.Params
		req.Params = &p
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap := s.hub.Snapshot()
	res, err := runSimulation(req, snap.Spec, snap.Version, s.cfg.Workers, s.logger)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := map[string]any{
		"telemetry": res.Telemetry,
		"metrics":   res.Metrics,
	}
	if res.Irradiance != "" {
		payload["irradiance"] = res.Irradiance
	}
	writeOK(w, payload)
}

// watchSpec hot-reloads the kernel spec from a JSON patch file. The watch is
// on the parent directory: editors replace files on save, which silently
// drops a file-level watch.
func (s *server) watchSpec(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create spec watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(s.cfg.Watch)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}
	s.logger.Info("watching spec file", zap.String("path", target))
	s.applySpecFile(target)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				s.applySpecFile(target)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("spec watcher error", zap.Error(err))
		}
	}
}

func (s *server) applySpecFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("read spec file", zap.String("path", path), zap.Error(err))
		return
	}
	var patch kernelspec.Patch
	if err := json.Unmarshal(data, &patch); err != nil {
		s.logger.Warn("parse spec file", zap.String("path", path), zap.Error(err))
		return
	}
	if ev := s.hub.Update(patch, kernelspec.UpdateOptions{Source: "file"}); ev != nil {
		s.logger.Info("spec file applied",
			zap.Uint64("version", ev.Version),
			zap.Strings("changed", ev.Changed))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
