// Package http exposes routes, dispatch evaluation and durable runs over a
// small JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/switchyard/internal/logging"
	"github.com/aretw0/switchyard/pkg/dispatch"
	"github.com/aretw0/switchyard/pkg/domain"
	"github.com/aretw0/switchyard/pkg/durable"
	"github.com/aretw0/switchyard/pkg/registry"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Engine is the part of the durable substrate the API drives.
type Engine interface {
	Run(ctx context.Context, name string, request any, opts ...durable.RunOption) (*domain.RunState, error)
	Start(ctx context.Context, name string, request any, opts ...durable.RunOption) (string, error)
	Query(ctx context.Context, runID string) (*domain.RunState, error)
	List(ctx context.Context) ([]domain.RunState, error)
}

// Server serves the API.
type Server struct {
	Engine     Engine
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Version    string
	logger     *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.Version = v
	}
}

// NewHandler creates the API handler.
func NewHandler(engine Engine, reg *registry.Registry, d *dispatch.Dispatcher, opts ...Option) http.Handler {
	s := &Server{
		Engine:     engine,
		Registry:   reg,
		Dispatcher: d,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.Health)
	r.Get("/routes", s.ListRoutes)
	r.Post("/routes/evaluate/{type}", s.EvaluateRoutes)
	r.Get("/runs", s.ListRuns)
	r.Get("/runs/{id}", s.GetRun)
	r.Post("/pipelines/{name}/runs", s.StartRun)
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if s.Version != "" {
		resp["version"] = s.Version
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// ListRoutes handles GET /routes. ?response_type= narrows the list to the
// routes a response of that type would be checked against.
func (s *Server) ListRoutes(w http.ResponseWriter, r *http.Request) {
	if s.Registry == nil {
		s.writeJSON(w, http.StatusOK, []domain.Route{})
		return
	}
	if rt := r.URL.Query().Get("response_type"); rt != "" {
		s.writeJSON(w, http.StatusOK, s.Registry.ListForResponseType(rt))
		return
	}
	s.writeJSON(w, http.StatusOK, s.Registry.Routes())
}

// EvaluateRoutes handles POST /routes/evaluate/{type}: the body is a
// response of that type, the result the dispatches it would produce.
func (s *Server) EvaluateRoutes(w http.ResponseWriter, r *http.Request) {
	if s.Dispatcher == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("routing is not configured"))
		return
	}
	typeName := chi.URLParam(r, "type")

	var response any
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&response); err != nil {
		s.logger.Warn("evaluate: invalid request body", "err", err)
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	result := s.Dispatcher.Dispatch(r.Context(), response, typeName)
	s.writeJSON(w, http.StatusOK, result)
}

// ListRuns handles GET /runs with optional pipeline, status and label filters
// (?label=endpoint_id:feed).
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.Engine.List(r.Context())
	if err != nil {
		s.logger.Error("list runs failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	q := r.URL.Query()
	pipeline, status := q.Get("pipeline"), q.Get("status")
	labelKey, labelValue, hasLabel := cutLabel(q.Get("label"))

	out := make([]RunSummary, 0, len(runs))
	for i := range runs {
		run := &runs[i]
		if pipeline != "" && run.Pipeline != pipeline {
			continue
		}
		if status != "" && string(run.Status) != status {
			continue
		}
		if hasLabel && run.Labels[labelKey] != labelValue {
			continue
		}
		out = append(out, summarize(run))
	}

	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit < len(out) {
		out = out[len(out)-limit:]
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	state, err := s.Engine.Query(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, statusOf(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

// StartRun handles POST /pipelines/{name}/runs. The run starts in the
// background (202) unless ?wait=true, which returns the final state.
// ?run_id= makes the call idempotent.
func (s *Server) StartRun(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var request json.RawMessage
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes)).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	var opts []durable.RunOption
	if id := r.URL.Query().Get("run_id"); id != "" {
		opts = append(opts, durable.WithRunID(id))
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		state, err := s.Engine.Run(r.Context(), name, request, opts...)
		if state == nil {
			s.writeError(w, statusOf(err), err)
			return
		}
		if err != nil {
			s.logger.Warn("run ended with error", "pipeline", name, "run_id", state.RunID, "err", err)
		}
		s.writeJSON(w, http.StatusOK, state)
		return
	}

	runID, err := s.Engine.Start(r.Context(), name, request, opts...)
	if err != nil {
		s.writeError(w, statusOf(err), err)
		return
	}
	w.Header().Set("Location", "/runs/"+runID)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// RunSummary is the list view of a run.
type RunSummary struct {
	RunID       string                `json:"run_id"`
	Pipeline    string                `json:"pipeline"`
	ParentRunID string                `json:"parent_run_id,omitempty"`
	Status      domain.PipelineStatus `json:"status"`
	CurrentStep string                `json:"current_step"`
	Attempt     int                   `json:"attempt"`
	LastError   string                `json:"last_error,omitempty"`
	Interrupted bool                  `json:"interrupted,omitempty"`
	Labels      map[string]string     `json:"labels,omitempty"`
	Children    []string              `json:"children,omitempty"`
}

func summarize(run *domain.RunState) RunSummary {
	children := make([]string, 0, len(run.Dispatches))
	for _, d := range run.Dispatches {
		children = append(children, d.RunID)
	}
	sort.Strings(children)
	return RunSummary{
		RunID:       run.RunID,
		Pipeline:    run.Pipeline,
		ParentRunID: run.ParentRunID,
		Status:      run.Status,
		CurrentStep: run.CurrentStep,
		Attempt:     run.Attempt,
		LastError:   run.LastError,
		Interrupted: run.Interrupted,
		Labels:      run.Labels,
		Children:    children,
	}
}

func cutLabel(s string) (key, value string, ok bool) {
	if s == "" {
		return "", "", false
	}
	for i := 0; i < len(s); i++ {
		if s[i] == ':' || s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", true
}

func statusOf(err error) int {
	var valErr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrRunNotFound), errors.Is(err, domain.ErrUnknownPipeline):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrRunInProgress):
		return http.StatusConflict
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
