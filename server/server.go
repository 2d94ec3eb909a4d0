package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/songzhibin97/sentinel/metrics"
	"github.com/songzhibin97/sentinel/storage"
	"github.com/songzhibin97/sentinel/types"
)

// Engine is the part of the workflow engine exposed over HTTP.
type Engine interface {
	Invoke(ctx context.Context, raw string) types.WorkflowState
	GetEvaluation(ctx context.Context, id uint64) (*types.WorkflowState, error)
}

// AssessRequest is the body of POST /assess-transaction.
type AssessRequest struct {
	TransactionDetails string `json:"transaction_details"`
}

// AssessResponse carries the justification and the full final state.
type AssessResponse struct {
	Recommendation string              `json:"recommendation"`
	Details        types.WorkflowState `json:"details"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the assessment API.
type Server struct {
	engine  Engine
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandler creates the HTTP handler for engine. m may be nil, in which
// case no metrics are recorded or exposed.
func NewHandler(engine Engine, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	s := &Server{
		engine:  engine,
		metrics: m,
		logger:  logger.With("component", "http"),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(s.logger))
	r.Use(middleware.Recoverer)
	if m != nil {
		r.Use(metrics.HTTPMetricsMiddleware(m))
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	r.Get("/healthz", s.Health)
	r.Post("/assess-transaction", s.Assess)
	r.Get("/evaluations/{id}", s.GetEvaluation)

	return r
}

// Assess handles POST /assess-transaction. Every well-formed request gets a
// 200; classification failures are reported as a rejected recommendation.
func (s *Server) Assess(w http.ResponseWriter, r *http.Request) {
	var body AssessRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, r, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	state := s.engine.Invoke(r.Context(), body.TransactionDetails)
	respondJSON(w, http.StatusOK, AssessResponse{
		Recommendation: state.Justification,
		Details:        state,
	})
}

// GetEvaluation handles GET /evaluations/{id}.
func (s *Server) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, errors.New("invalid evaluation id"))
		return
	}

	state, err := s.engine.GetEvaluation(r.Context(), id)
	if err != nil {
		s.respondError(w, r, mapHTTPStatus(err), err)
		return
	}

	respondJSON(w, http.StatusOK, state)
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func mapHTTPStatus(err error) int {
	if errors.Is(err, storage.ErrEvaluationNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "request_id", GetRequestID(r.Context()), "status", status, "error", err)
	}
	respondJSON(w, status, errorResponse{Error: err.Error()})
}
