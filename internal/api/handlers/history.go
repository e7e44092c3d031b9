package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dvloznov/quantoda/internal/aggregator"
	"github.com/dvloznov/quantoda/internal/api/middleware"
	"github.com/dvloznov/quantoda/internal/domain"
	"github.com/dvloznov/quantoda/internal/history"
	"github.com/dvloznov/quantoda/internal/session"
)

// HistoryReader is the part of the history store the API needs.
type HistoryReader interface {
	List(ctx context.Context, owner string) ([]domain.HistoryRecord, error)
	Get(ctx context.Context, owner, id string) (domain.HistoryRecord, bool, error)
	Clear(ctx context.Context, owner string) error
}

// HistoryHandler serves the logged-in user's analysis history.
type HistoryHandler struct {
	sessions *session.Manager
	history  HistoryReader
	log      zerolog.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(sessions *session.Manager, history HistoryReader, log zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{
		sessions: sessions,
		history:  history,
		log:      log,
	}
}

// ListHistory handles GET /api/history
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := authenticatedSession(w, r, h.sessions)
	if !ok {
		return
	}

	records, err := h.history.List(r.Context(), s.Owner())
	if err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to list history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// Trend handles GET /api/history/trend
func (h *HistoryHandler) Trend(w http.ResponseWriter, r *http.Request) {
	s, ok := authenticatedSession(w, r, h.sessions)
	if !ok {
		return
	}

	records, err := h.history.List(r.Context(), s.Owner())
	if err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to list history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, history.BuildTrend(records))
}

// Compare handles GET /api/history/compare?from=&to=
func (h *HistoryHandler) Compare(w http.ResponseWriter, r *http.Request) {
	s, ok := authenticatedSession(w, r, h.sessions)
	if !ok {
		return
	}

	q := r.URL.Query()
	fromID, toID := q.Get("from"), q.Get("to")
	if fromID == "" || toID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "from and to are required")
		return
	}

	var pair [2]domain.HistoryRecord
	for i, id := range []string{fromID, toID} {
		rec, found, err := h.history.Get(r.Context(), s.Owner(), id)
		if err != nil {
			h.log.Error().Err(err).Str("analysis_id", id).Msg("Failed to load analysis")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to load history")
			return
		}
		if !found {
			middleware.WriteError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		pair[i] = rec
	}

	middleware.WriteJSON(w, http.StatusOK, history.Compare(pair[0], pair[1]))
}

// ClearHistory handles DELETE /api/history
func (h *HistoryHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := authenticatedSession(w, r, h.sessions)
	if !ok {
		return
	}

	if err := h.history.Clear(r.Context(), s.Owner()); err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to clear history")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to clear history")
		return
	}

	h.log.Info().Str("session_id", s.ID).Msg("History cleared")
	w.WriteHeader(http.StatusNoContent)
}

// SimulationResult is the what-if answer.
type SimulationResult struct {
	aggregator.Totals
	SavingsMonthly float64 `json:"savingsMonthly"`
	SavingsYearly  float64 `json:"savingsYearly"`
}

// Simulate handles POST /api/simulate
//
// The body names either a stored analysis ("analysisId") or carries the
// items inline, plus one active flag per item.
func (h *HistoryHandler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AnalysisID string                    `json:"analysisId"`
		Items      []domain.SubscriptionItem `json:"items"`
		Active     []bool                    `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	items := req.Items
	if req.AnalysisID != "" {
		s, ok := authenticatedSession(w, r, h.sessions)
		if !ok {
			return
		}
		rec, found, err := h.history.Get(r.Context(), s.Owner(), req.AnalysisID)
		if err != nil {
			h.log.Error().Err(err).Str("analysis_id", req.AnalysisID).Msg("Failed to load analysis")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to load history")
			return
		}
		if !found {
			middleware.WriteError(w, http.StatusNotFound, "Analysis not found")
			return
		}
		items = rec.Items
	} else {
		for i, item := range items {
			if err := item.Validate(); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, fmt.Sprintf("item %d: %v", i, err))
				return
			}
		}
	}

	sim, err := aggregator.NewSimulationWithFlags(items, req.Active)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "active must have one flag per item")
		return
	}

	savedMonthly, savedYearly := sim.Savings()
	middleware.WriteJSON(w, http.StatusOK, SimulationResult{
		Totals:         sim.Totals(),
		SavingsMonthly: savedMonthly,
		SavingsYearly:  savedYearly,
	})
}
