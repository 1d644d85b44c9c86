// Package server is the HTTP ingress: it validates incoming units, enqueues
// them, and answers immediately. Processing happens entirely inside the
// worker pool; no request ever waits on a model or store call.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prensa-labs/newsgraph/internal/model"
	"github.com/prensa-labs/newsgraph/internal/worker"
)

// Enqueuer is the slice of the worker pool the ingress needs.
type Enqueuer interface {
	Enqueue(unit *model.ProcessingUnit) error
	Depth() int
	Capacity() int
	ActiveWorkers() int
	Snapshot() worker.MetricsSnapshot
}

// Server holds the ingress dependencies.
type Server struct {
	pool    Enqueuer
	version string
}

// New creates the ingress over the given pool.
func New(pool Enqueuer, version string) *Server {
	return &Server{pool: pool, version: version}
}

// Router builds the chi router with the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Post("/procesar", s.handleArticle)
	r.Post("/procesar_fragmento", s.handleFragment)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	return r
}

type acceptedResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Article *model.Article `json:"article"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Article == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "invalid request body",
			Fields: []string{"article payload is required"},
		})
		return
	}

	s.admit(w, &model.ProcessingUnit{
		ID:         uuid.New().String(),
		Kind:       model.UnitKindArticle,
		Article:    req.Article,
		ReceivedAt: time.Now().UTC(),
	})
}

func (s *Server) handleFragment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fragment *model.Fragment `json:"fragmento"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Fragment == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "invalid request body",
			Fields: []string{"fragmento payload is required"},
		})
		return
	}

	s.admit(w, &model.ProcessingUnit{
		ID:         uuid.New().String(),
		Kind:       model.UnitKindFragment,
		Fragment:   req.Fragment,
		ReceivedAt: time.Now().UTC(),
	})
}

// admit validates and enqueues one unit. The response set is fixed: 202 on
// accept, 400 on validation with the offending fields, 503 on a full queue,
// 500 on anything else.
func (s *Server) admit(w http.ResponseWriter, unit *model.ProcessingUnit) {
	if err := unit.Validate(); err != nil {
		var ve *model.ValidationError
		resp := errorResponse{Error: "validation failed"}
		if errors.As(err, &ve) {
			resp.Fields = ve.Fields
		}
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	if err := s.pool.Enqueue(unit); err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "queue full, retry later"})
			return
		}
		zap.L().Error("enqueue failed", zap.String("unit_id", unit.ID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Status:    "accepted",
		Message:   "unit " + unit.ID + " queued for processing",
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"active_workers": s.pool.ActiveWorkers(),
		"queue_depth":    s.pool.Depth(),
		"queue_capacity": s.pool.Capacity(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}
