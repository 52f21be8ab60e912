package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/dmitrymomot/paywall/core"
	"github.com/dmitrymomot/paywall/pkg/logger"
	"github.com/dmitrymomot/paywall/pkg/subscription"
)

// Stripe caps webhook payloads at 64KB; larger bodies are invalid.
const maxWebhookBodyBytes = 65536

// Service exposes the billing HTTP surface: checkout creation, checkout
// finalization, subscription lookup and the provider webhook.
type Service struct {
	subs     *subscription.Service
	validate *validator.Validate
	log      *slog.Logger
}

// ServiceOption configures optional Service settings.
type ServiceOption func(*Service)

// WithLogger sets the request logger.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates the billing module. Panics if the subscription
// service is nil.
func NewService(subs *subscription.Service, opts ...ServiceOption) *Service {
	if subs == nil {
		panic("billing: subscription service is required")
	}

	s := &Service{
		subs:     subs,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handle returns the module's router, intended to be mounted under the
// provider-specific API prefix.
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/checkout", s.checkout)
	r.Post("/finalize-subscription", s.finalizeSubscription)
	r.Post("/cancel-subscription", s.cancelSubscription)
	r.Get("/check-subscription", s.checkSubscription)
	r.Get("/payment-status", s.paymentStatus)
	r.Post("/webhook", s.webhook)

	return r
}

type checkoutRequest struct {
	UserID  string `json:"userId" validate:"required"`
	PlanID  string `json:"planId" validate:"required"`
	PriceID string `json:"priceId"` // optional pre-provisioned price override
}

func (s *Service) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		core.Error(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		core.Error(w, err)
		return
	}

	base := requestBaseURL(r)
	sess, err := s.subs.StartCheckout(r.Context(), subscription.StartCheckoutParams{
		UserID:     req.UserID,
		PlanID:     req.PlanID,
		PriceID:    req.PriceID,
		SuccessURL: base + "/payment/success?session_id={CHECKOUT_SESSION_ID}&plan=" + req.PlanID,
		CancelURL:  base + "/pricing?cancelled=true",
	})
	if err != nil {
		core.Error(w, s.mapError(r, err))
		return
	}

	core.JSON(w, http.StatusOK, sess)
}

type finalizeRequest struct {
	SessionID string `json:"sessionId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
}

func (s *Service) finalizeSubscription(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		core.Error(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		core.Error(w, err)
		return
	}

	rec, detail, err := s.subs.FinalizeCheckout(r.Context(), req.SessionID, req.UserID)
	if err != nil {
		core.Error(w, s.mapError(r, err))
		return
	}

	core.JSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"subscription": rec,
		"session": map[string]any{
			"customerEmail": detail.CustomerEmail,
			"amountTotal":   detail.AmountTotal,
			"currency":      detail.Currency,
		},
	})
}

type cancelRequest struct {
	UserID string `json:"userId" validate:"required"`
}

func (s *Service) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		core.Error(w, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		core.Error(w, err)
		return
	}

	if err := s.subs.CancelSubscription(r.Context(), req.UserID); err != nil {
		core.Error(w, s.mapError(r, err))
		return
	}

	core.JSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

func (s *Service) checkSubscription(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("userId")
	if uid == "" {
		core.Error(w, core.NewHTTPError(http.StatusBadRequest, "missing_user_id"))
		return
	}

	user, err := s.subs.UserRecord(r.Context(), uid)
	if err != nil {
		core.Error(w, s.mapError(r, err))
		return
	}

	core.JSON(w, http.StatusOK, map[string]any{
		"subscription": user.Subscription,
		"isActive":     user.Subscription.IsActive,
		"plan":         user.Subscription.PlanID,
	})
}

func (s *Service) paymentStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		core.Error(w, core.NewHTTPError(http.StatusBadRequest, "missing_session_id"))
		return
	}

	detail, err := s.subs.SessionStatus(r.Context(), sessionID)
	if err != nil {
		core.Error(w, s.mapError(r, err))
		return
	}

	resp := map[string]any{
		"status":        detail.PaymentStatus,
		"customerEmail": detail.CustomerEmail,
		"amountTotal":   detail.AmountTotal,
		"currency":      detail.Currency,
	}
	if detail.Subscription != nil {
		resp["subscriptionId"] = detail.Subscription.ID
	}

	core.JSON(w, http.StatusOK, resp)
}

func (s *Service) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		core.Error(w, core.NewHTTPError(http.StatusBadRequest, "invalid_payload"))
		return
	}

	if err := s.subs.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		if errors.Is(err, subscription.ErrSignatureInvalid) {
			core.Error(w, core.NewHTTPError(http.StatusBadRequest, "signature_invalid"))
			return
		}
		s.log.Error("webhook processing failed",
			logger.Error(err),
			logger.Component("billing_webhook"),
		)
		core.Error(w, core.ErrInternalServerError)
		return
	}

	core.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

// mapError translates domain errors into HTTP errors and logs the
// details left out of the client response.
func (s *Service) mapError(r *http.Request, err error) error {
	switch {
	case errors.Is(err, subscription.ErrInvalidPlan), errors.Is(err, subscription.ErrPlanNotFound):
		return core.NewHTTPError(http.StatusBadRequest, "invalid_plan")
	case errors.Is(err, subscription.ErrPaymentIncomplete):
		return core.NewHTTPError(http.StatusBadRequest, "payment_incomplete")
	case errors.Is(err, subscription.ErrUserNotFound):
		return core.ErrNotFound
	case errors.Is(err, subscription.ErrUpstreamFailure):
		s.log.Error("billing provider call failed",
			slog.String("path", r.URL.Path),
			logger.Error(err),
			logger.Component("billing"),
		)
		return core.NewHTTPError(http.StatusInternalServerError, "upstream_failure")
	default:
		s.log.Error("billing request failed",
			slog.String("path", r.URL.Path),
			logger.Error(err),
			logger.Component("billing"),
		)
		return err
	}
}
