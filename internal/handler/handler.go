package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pavelanni/skillforge/internal/authoring"
	"github.com/pavelanni/skillforge/internal/exam"
	appI18n "github.com/pavelanni/skillforge/internal/i18n"
	"github.com/pavelanni/skillforge/internal/metrics"
	"github.com/pavelanni/skillforge/internal/store"
)

const maxBodyBytes = 1 << 20

var errBadRequest = errors.New("bad request")

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	exams     *exam.Service
	authoring *authoring.Service
	adminHash []byte
}

// New creates a new Handler. With an empty adminHash the admin endpoints are open.
func New(exams *exam.Service, auth *authoring.Service, adminHash []byte) *Handler {
	return &Handler{exams: exams, authoring: auth, adminHash: adminHash}
}

// Routes registers the API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/quizzes", h.handleListQuizzes)
	r.Get("/quiz", h.handleGetQuiz)
	r.Post("/start-exam", h.handleStartExam)
	r.Post("/abandon-exam", h.handleAbandonExam)
	r.Post("/submit-quiz", h.handleSubmit)
	r.Post("/ask-ai", h.handleAskAI)
	r.Get("/ai-status", h.handleAIStatus)
	r.Get("/ai-interactions", h.handleAIInteractions)
	r.Get("/result", h.handleResult)
	r.Get("/history", h.handleHistory)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/quizzes", h.handleCreateQuiz)
		r.Post("/import", h.handleImport)
		r.Delete("/delete-quiz", h.handleDeleteQuiz)
		r.Delete("/delete-exam", h.handleDeleteExam)
	})
}

// NewRouter builds the full HTTP router: middleware, health and metrics
// endpoints, and the API under /api.
func NewRouter(h *Handler, corsOrigins []string) http.Handler {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type", adminPasswordHeader},
		MaxAge:         300,
	}))
	r.Use(metrics.Middleware)
	r.Use(appI18n.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())
	r.Route("/api", h.Routes)
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// writeError maps err onto an HTTP status and writes {"error": ...}.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	status := http.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, exam.ErrInvalid), errors.Is(err, authoring.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
		msg = appI18n.T(ctx, "ErrNotFound") + ": " + err.Error()
	case errors.Is(err, exam.ErrExamClosed):
		status = http.StatusConflict
		msg = appI18n.T(ctx, "ErrExamClosed")
	case errors.Is(err, exam.ErrRateLimited):
		status = http.StatusTooManyRequests
		msg = appI18n.T(ctx, "ErrRateLimited")
		w.Header().Set("Retry-After", "1")
	}

	if status >= http.StatusInternalServerError {
		slog.ErrorContext(ctx, "request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(ctx), "error", err)
	} else {
		slog.DebugContext(ctx, "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a JSON request body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// intParam parses an optional integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number", errBadRequest, name)
	}
	return n, nil
}
