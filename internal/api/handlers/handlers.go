package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/dvloznov/quantoda/internal/api/middleware"
	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/jobs"
	"github.com/dvloznov/quantoda/internal/session"
)

// SessionView is the session as returned by the API.
type SessionView struct {
	session.Session
	State session.State `json:"state"`
}

func viewOf(s session.Session) SessionView {
	return SessionView{Session: s, State: s.State()}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNoCredits):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrAnalysisInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBillingNotOwned):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// currentSession loads the session named by the X-Session-ID header.
// It writes the error response and returns false when there is none.
func currentSession(w http.ResponseWriter, r *http.Request, sessions *session.Manager) (session.Session, bool) {
	id := middleware.SessionIDFromContext(r.Context())
	if id == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Session-ID header is required")
		return session.Session{}, false
	}
	s, err := sessions.Get(id)
	if err != nil {
		middleware.WriteError(w, statusFor(err), domain.UserMessage(err))
		return session.Session{}, false
	}
	return s, true
}

// authenticatedSession is currentSession plus a login check.
func authenticatedSession(w http.ResponseWriter, r *http.Request, sessions *session.Manager) (session.Session, bool) {
	s, ok := currentSession(w, r, sessions)
	if !ok {
		return s, false
	}
	if !s.Authenticated {
		middleware.WriteError(w, http.StatusUnauthorized, domain.UserMessage(domain.ErrNotAuthenticated))
		return s, false
	}
	return s, true
}

// SessionsHandler handles session endpoints.
type SessionsHandler struct {
	sessions *session.Manager
	log      zerolog.Logger
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(sessions *session.Manager, log zerolog.Logger) *SessionsHandler {
	return &SessionsHandler{
		sessions: sessions,
		log:      log,
	}
}

// CreateSession handles POST /api/sessions
func (h *SessionsHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s := h.sessions.Create()
	h.log.Info().Str("session_id", s.ID).Msg("Session created")
	middleware.WriteJSON(w, http.StatusCreated, viewOf(s))
}

// GetSession handles GET /api/sessions/{id}
func (h *SessionsHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, statusFor(err), domain.UserMessage(err))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, viewOf(s))
}

// Login handles POST /api/sessions/{id}/login
func (h *SessionsHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "email is required")
		return
	}

	s, err := h.sessions.Login(chi.URLParam(r, "id"), req.Email)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			middleware.WriteError(w, http.StatusNotFound, domain.UserMessage(err))
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, "Invalid email")
		return
	}

	h.log.Info().Str("session_id", s.ID).Msg("Session logged in")
	middleware.WriteJSON(w, http.StatusOK, viewOf(s))
}

// Logout handles POST /api/sessions/{id}/logout
func (h *SessionsHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Logout(chi.URLParam(r, "id"))
	if err != nil {
		middleware.WriteError(w, statusFor(err), domain.UserMessage(err))
		return
	}
	middleware.WriteJSON(w, http.StatusOK, viewOf(s))
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}. Jobs of other sessions read as missing.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil || job.SessionID != middleware.SessionIDFromContext(ctx) {
		if err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
			h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		}
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID := middleware.SessionIDFromContext(ctx)
	if sessionID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "X-Session-ID header is required")
		return
	}

	jobsList, err := h.store.ListJobs(ctx, jobs.JobFilter{
		SessionID: sessionID,
		Status:    jobs.JobStatus(r.URL.Query().Get("status")),
		Limit:     20,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}
