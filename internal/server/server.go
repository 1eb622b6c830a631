// Package server exposes the pipeline over HTTP: POST /v1/runs starts a run
// and streams its progress as server-sent events; completed runs can be read
// back from the run store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kbforge/knowledge-agent/internal/cards"
	"github.com/kbforge/knowledge-agent/internal/pipeline"
	"github.com/kbforge/knowledge-agent/internal/progress"
	"github.com/kbforge/knowledge-agent/internal/runstore"
)

// Runner starts one pipeline run. Satisfied by *pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request, reporter *progress.Reporter) (cards.PipelineResult, error)
}

type Server struct {
	runner  Runner
	request pipeline.Request
	store   *runstore.Store
	log     *slog.Logger
	mux     *http.ServeMux
}

type Options struct {
	Runner Runner
	// DefaultRequest is used when the POST body does not carry selections.
	DefaultRequest pipeline.Request
	// Store is optional; /v1/runs listing returns 404 without it.
	Store  *runstore.Store
	Logger *slog.Logger
}

func New(opts Options) (*Server, error) {
	if opts.Runner == nil {
		return nil, errors.New("server: missing runner")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{
		runner:  opts.Runner,
		request: opts.DefaultRequest,
		store:   opts.Store,
		log:     logger,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /v1/runs", s.handleStartRun)
	s.mux.HandleFunc("GET /v1/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// handleStartRun executes one pipeline run synchronously, streaming progress
// events to the response as they happen. The connection closing cancels the
// run; in-flight work is discarded.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	req := s.request
	if r.Body != nil {
		var posted pipeline.Request
		if err := json.NewDecoder(r.Body).Decode(&posted); err == nil && len(posted.Selections) > 0 {
			req = posted
		}
	}

	progress.PrepareSSEHeaders(w.Header())
	w.WriteHeader(http.StatusOK)

	reporter := progress.NewReporter(0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		// The reporter is closed by Run on complete or fatal error; stream
		// until then.
		if err := progress.StreamSSE(w, reporter.Events()); err != nil {
			s.log.Debug("server: event stream ended early", "error", err)
		}
	}()

	if _, err := s.runner.Run(r.Context(), req, reporter); err != nil {
		s.log.Warn("server: run failed", "error", err)
	}
	<-done
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "run store unavailable", http.StatusNotFound)
		return
	}
	runs, err := s.store.ListRuns(r.Context(), 50)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "run store unavailable", http.StatusNotFound)
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	out := map[string]any{"run": run}
	if result, err := s.store.GetResult(r.Context(), id); err == nil {
		out["result"] = result
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
