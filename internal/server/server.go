// Package server exposes the read projections and the form intake endpoint
// as a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"casework/internal/intake"
	"casework/internal/logging"
	"casework/internal/projections"
	"casework/internal/services"
)

// Server wraps the HTTP listener around the projection and intake services.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// New builds the API server bound to addr. A nil logger disables logging.
func New(addr string, views *projections.Service, forms *intake.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	handler := &apiHandler{views: views, forms: forms, logger: logger}

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", handler.health)
		r.Get("/signals", handler.listSignals)
		r.Get("/queue", handler.listQueue)
		r.Get("/cases/{caseID}", handler.caseOverview)
		r.Post("/forms/{kind}", handler.submitForm)
	})

	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until the context ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", logging.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

type apiHandler struct {
	views  *projections.Service
	forms  *intake.Service
	logger *slog.Logger
}

func (h *apiHandler) health(w http.ResponseWriter, r *http.Request) {
	view, err := h.views.Health(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, view)
}

func (h *apiHandler) listSignals(w http.ResponseWriter, r *http.Request) {
	query := projections.SignalQuery{
		Type: r.URL.Query().Get("type"),
		Page: pageFromRequest(r),
	}
	if raw := r.URL.Query().Get("processed"); raw != "" {
		processed, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, services.Wrap(services.ErrValidation, "server", "signals", "processed must be a boolean", err))
			return
		}
		query.Processed = &processed
	}
	var err error
	if query.Since, err = timeParam(r, "since"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if query.Until, err = timeParam(r, "until"); err != nil {
		h.writeError(w, r, err)
		return
	}

	views, err := h.views.Signals(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"signals": views})
}

func (h *apiHandler) listQueue(w http.ResponseWriter, r *http.Request) {
	query := projections.QueueQuery{
		Status:        r.URL.Query().Get("status"),
		SignalEventID: r.URL.Query().Get("signal"),
		HookID:        r.URL.Query().Get("hook"),
		Page:          pageFromRequest(r),
	}
	views, err := h.views.QueueEntries(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"entries": views})
}

func (h *apiHandler) caseOverview(w http.ResponseWriter, r *http.Request) {
	caseID, err := strconv.ParseInt(chi.URLParam(r, "caseID"), 10, 64)
	if err != nil {
		h.writeError(w, r, services.Wrap(services.ErrValidation, "server", "case", "case id must be numeric", err))
		return
	}
	overview, err := h.views.Case(r.Context(), caseID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, overview)
}

type formRequest struct {
	SubmissionID string         `json:"submissionId"`
	Fields       map[string]any `json:"fields"`
}

func (h *apiHandler) submitForm(w http.ResponseWriter, r *http.Request) {
	kind, ok := intake.ParseFormKind(chi.URLParam(r, "kind"))
	if !ok {
		h.writeError(w, r, services.Wrap(services.ErrValidation, "server", "form", "unknown form kind", nil))
		return
	}

	var req formRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, services.Wrap(services.ErrValidation, "server", "form", "unreadable request body", err))
		return
	}

	signalID, err := h.forms.Submit(r.Context(), intake.Submission{
		Kind:         kind,
		SubmissionID: req.SubmissionID,
		Fields:       req.Fields,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"signalId": signalID})
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("response encoding failed", logging.Error(err))
	}
}

func (h *apiHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			logging.String("path", r.URL.Path), logging.Error(err))
	}
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func pageFromRequest(r *http.Request) projections.Page {
	page := projections.Page{}
	if raw := r.URL.Query().Get("page"); raw != "" {
		page.Number, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("per_page"); raw != "" {
		page.Size, _ = strconv.Atoi(raw)
	}
	return page
}

func timeParam(r *http.Request, name string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrValidation, "server", "query",
			name+" must be RFC3339", err)
	}
	return parsed, nil
}
