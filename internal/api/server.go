package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"mail2cal/internal/orchestrator"
)

const maxBodyBytes = 1 << 20

// Runner runs the pipeline once.
type Runner interface {
	Run(ctx context.Context, dryRun bool) orchestrator.Outcome
}

type Server struct {
	runner Runner
	logger *slog.Logger
	mux    *http.ServeMux
}

func NewServer(runner Runner, logger *slog.Logger) *Server {
	server := &Server{
		runner: runner,
		logger: logger,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/run", server.handleRun)
	mux.HandleFunc("/health", server.handleHealth)
	server.mux = mux
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		DryRun bool `json:"dry_run"`
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&payload)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	outcome := s.runner.Run(r.Context(), payload.DryRun)
	if outcome.Failed() {
		s.logger.Warn("Run finished with error.", "kind", outcome.Kind, "error", outcome.Err)
	}
	s.respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respondText(w, http.StatusOK, "ok")
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondText(w http.ResponseWriter, status int, payload string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}
