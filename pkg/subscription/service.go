package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dmitrymomot/paywall/pkg/logger"
)

// Service ties the plan catalog, billing provider and user store together.
// It owns the two state transitions that matter: starting a checkout and
// reconciling its outcome back into the persisted user record.
type Service struct {
	catalog  *Catalog
	provider Provider
	store    UserStore
	log      *slog.Logger
}

// ServiceOption configures optional Service settings.
type ServiceOption func(*Service)

// WithLogger sets the logger used for the reconciliation side channel.
func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// NewService creates a new Service. Panics if any required dependency is
// nil to fail fast during initialization.
func NewService(catalog *Catalog, provider Provider, store UserStore, opts ...ServiceOption) *Service {
	if catalog == nil {
		panic("subscription: catalog is required")
	}
	if provider == nil {
		panic("subscription: provider is required")
	}
	if store == nil {
		panic("subscription: store is required")
	}

	s := &Service{
		catalog:  catalog,
		provider: provider,
		store:    store,
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartCheckoutParams carries the inputs for a checkout. PriceID is an
// optional caller-supplied override for the plan's configured price
// reference; when both are empty the provider provisions a price on the
// fly.
type StartCheckoutParams struct {
	UserID     string
	PlanID     string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// StartCheckout creates a hosted checkout session for a (user, plan) pair.
// The plan is resolved through the catalog; the free tier is never checked
// out. Repeated calls create repeated sessions, so callers must debounce.
func (s *Service) StartCheckout(ctx context.Context, p StartCheckoutParams) (*CheckoutSession, error) {
	if p.UserID == "" {
		return nil, errors.New("user ID is required")
	}

	plan, err := s.catalog.Get(p.PlanID)
	if err != nil {
		return nil, errors.Join(ErrInvalidPlan, err)
	}
	if plan.IsFree() {
		return nil, fmt.Errorf("%w: free tier is never checked out", ErrInvalidPlan)
	}

	priceID := p.PriceID
	if priceID == "" {
		priceID = plan.PriceRef
	}

	return s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		UserID:     p.UserID,
		PlanID:     plan.ID,
		PlanName:   plan.Name,
		PlanType:   s.planType(plan.Name),
		PriceID:    priceID,
		Amount:     plan.Price.Amount,
		Currency:   plan.Price.Currency,
		Interval:   plan.Interval,
		SuccessURL: p.SuccessURL,
		CancelURL:  p.CancelURL,
	})
}

// FinalizeCheckout pulls authoritative state for a completed checkout
// session from the provider, derives the canonical subscription record and
// mirrors it into the user store.
//
// The mirror write is best-effort: the payment is real regardless of
// whether the write succeeds, so a store failure is logged for out-of-band
// backfill and the derived record is still returned.
func (s *Service) FinalizeCheckout(ctx context.Context, sessionID, userID string) (*Record, *SessionDetail, error) {
	detail, err := s.provider.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	if detail.PaymentStatus != PaymentStatusPaid || detail.Subscription == nil {
		return nil, nil, fmt.Errorf("%w: session %s has payment status %q", ErrPaymentIncomplete, sessionID, detail.PaymentStatus)
	}

	rec := Record{
		IsActive:         detail.Subscription.Status == SubscriptionStatusActive,
		PlanID:           s.derivePlanID(detail),
		SubscriptionID:   detail.Subscription.ID,
		CurrentPeriodEnd: epochSeconds(detail.Subscription.CurrentPeriodEnd),
	}

	if err := s.store.SaveSubscription(ctx, userID, rec); err != nil {
		s.log.Error("subscription mirror write failed, record returned to caller anyway",
			logger.UserID(userID),
			logger.SessionID(sessionID),
			logger.PlanID(rec.PlanID),
			logger.Error(err),
			logger.Component("reconciliation"),
		)
	}

	return &rec, detail, nil
}

// derivePlanID recovers the purchased plan from session data. The
// precedence order is fixed: the structured plan-type tag wins, then the
// plan-name metadata, then the first line item's description, then the
// free tier. Metadata and line items can disagree (stale metadata after a
// plan rename), so only the first matching rule applies.
func (s *Service) derivePlanID(detail *SessionDetail) string {
	if t := detail.Metadata[MetadataPlanType]; t != "" {
		return t
	}
	if n := detail.Metadata[MetadataPlanName]; n != "" {
		return s.planType(n)
	}
	if d := detail.LineItemDescription; d != "" {
		return s.planType(d)
	}
	return s.catalog.Free().ID
}

// planType maps free-text plan naming onto a catalog plan ID with a
// case-insensitive substring match against the top tier. Fragile by
// nature, which is why derivePlanID prefers the structured tag; this
// fallback stays for sessions created before the tag existed.
func (s *Service) planType(name string) string {
	top := s.catalog.Top()
	free := s.catalog.Free()
	if top.ID != free.ID && strings.Contains(strings.ToLower(name), strings.ToLower(top.ID)) {
		return top.ID
	}
	return free.ID
}

// CancelSubscription schedules the user's provider subscription for
// cancellation at the end of the current billing period. The stored
// record stays active; the provider's deletion signal flips it when the
// period actually ends.
func (s *Service) CancelSubscription(ctx context.Context, uid string) error {
	user, err := s.store.Get(ctx, uid)
	if err != nil {
		return err
	}
	if user.Subscription.SubscriptionID == "" {
		return fmt.Errorf("%w: user %s has no provider subscription", ErrInvalidPlan, uid)
	}
	return s.provider.CancelAtPeriodEnd(ctx, user.Subscription.SubscriptionID)
}

// SessionStatus fetches the current provider view of a checkout session.
func (s *Service) SessionStatus(ctx context.Context, sessionID string) (*SessionDetail, error) {
	return s.provider.RetrieveCheckoutSession(ctx, sessionID)
}

// UserRecord reads the persisted record for a user.
func (s *Service) UserRecord(ctx context.Context, uid string) (*UserRecord, error) {
	return s.store.Get(ctx, uid)
}

// HandleWebhook verifies and processes an out-of-band signal from the
// billing provider. Checkout completions are reconciled through the same
// path as client-driven finalization; renewal and cancellation signals
// converge the stored record toward provider state.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.provider.VerifyEvent(payload, signature)
	if err != nil {
		return err
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		if ev.SessionID == "" || ev.UserID == "" {
			s.log.Warn("checkout completion event without session or user reference",
				logger.SessionID(ev.SessionID),
				logger.Component("webhook"),
			)
			return nil
		}
		if _, _, err := s.FinalizeCheckout(ctx, ev.SessionID, ev.UserID); err != nil {
			// An async payment method may still be settling; a later
			// event converges the record.
			if errors.Is(err, ErrPaymentIncomplete) {
				return nil
			}
			return err
		}
		return nil

	case EventSubscriptionUpdated:
		return s.applySubscriptionState(ctx, ev, ev.Status == SubscriptionStatusActive)

	case EventSubscriptionDeleted, EventInvoicePaymentFailed:
		return s.applySubscriptionState(ctx, ev, false)
	}

	return nil
}

func (s *Service) applySubscriptionState(ctx context.Context, ev *Event, active bool) error {
	if ev.UserID == "" {
		s.log.Warn("webhook event without user reference, skipped",
			slog.String("event_type", ev.Type),
			logger.Component("webhook"),
		)
		return nil
	}

	var rec Record
	existing, err := s.store.Get(ctx, ev.UserID)
	switch {
	case err == nil:
		rec = existing.Subscription
	case errors.Is(err, ErrUserNotFound):
		rec = FreeRecord(s.catalog.Free().ID)
	default:
		return err
	}

	rec.IsActive = active
	if ev.SubscriptionID != "" {
		rec.SubscriptionID = ev.SubscriptionID
	}
	if end := epochSeconds(ev.CurrentPeriodEnd); end != nil {
		rec.CurrentPeriodEnd = end
	}
	if rec.PlanID == "" {
		rec.PlanID = s.catalog.Free().ID
	}

	return s.store.SaveSubscription(ctx, ev.UserID, rec)
}
