package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/quantoda/internal/api/middleware"
	"github.com/dvloznov/quantoda/internal/payment"
	"github.com/dvloznov/quantoda/internal/session"
)

// PaymentGateway creates and checks credit purchases.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, email string) (*payment.Checkout, error)
	CheckStatus(ctx context.Context, billingID string) (bool, error)
}

// PaymentsHandler sells analysis credits.
type PaymentsHandler struct {
	sessions *session.Manager
	gateway  PaymentGateway
	log      zerolog.Logger
}

// NewPaymentsHandler creates a new payments handler.
func NewPaymentsHandler(sessions *session.Manager, gateway PaymentGateway, log zerolog.Logger) *PaymentsHandler {
	return &PaymentsHandler{
		sessions: sessions,
		gateway:  gateway,
		log:      log,
	}
}

// Checkout handles POST /api/payments/checkout
func (h *PaymentsHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	s, ok := authenticatedSession(w, r, h.sessions)
	if !ok {
		return
	}

	checkout, err := h.gateway.CreateCheckout(r.Context(), s.Email)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID).Msg("Failed to create checkout")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to create checkout")
		return
	}
	if err := h.sessions.RegisterBilling(s.ID, checkout.BillingID); err != nil {
		h.log.Error().Err(err).Str("session_id", s.ID).Str("billing_id", checkout.BillingID).Msg("Failed to register billing")
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}

	h.log.Info().Str("session_id", s.ID).Str("billing_id", checkout.BillingID).Bool("mock", checkout.Mock).Msg("Checkout created")
	middleware.WriteJSON(w, http.StatusOK, checkout)
}

// CheckPayment handles POST /api/payments/check
func (h *PaymentsHandler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	s, ok := authenticatedSession(w, r, h.sessions)
	if !ok {
		return
	}

	var req struct {
		BillingID string `json:"billingId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.BillingID) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "billingId is required")
		return
	}

	if err := h.sessions.VerifyBilling(s.ID, req.BillingID); err != nil {
		h.log.Warn().Str("session_id", s.ID).Str("billing_id", req.BillingID).Msg("Billing claimed by another session")
		middleware.WriteError(w, statusFor(err), err.Error())
		return
	}

	paid, err := h.gateway.CheckStatus(r.Context(), req.BillingID)
	if err != nil {
		h.log.Error().Err(err).Str("billing_id", req.BillingID).Msg("Failed to check payment")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to check payment")
		return
	}

	credited := false
	if paid {
		s, credited, err = h.sessions.CreditPurchase(s.ID, req.BillingID)
		if err != nil {
			middleware.WriteError(w, statusFor(err), err.Error())
			return
		}
		if credited {
			h.log.Info().Str("session_id", s.ID).Str("billing_id", req.BillingID).Int("credits", s.Credits).Msg("Purchase credited")
		}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"paid":     paid,
		"credited": credited,
		"session":  viewOf(s),
	})
}
