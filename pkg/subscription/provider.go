package subscription

import "context"

// Provider defines the minimal interface for payment provider integrations.
// The provider is the authority on whether money changed hands; everything
// this package persists is a mirror derived from provider state.
//
// Implementations should use the official provider SDK and handle
// provider-specific quirks internally.
type Provider interface {
	// CreateCheckoutSession creates a hosted subscription-mode checkout
	// session. One external session is created per call; repeated calls
	// with the same inputs create repeated sessions, so callers must
	// debounce.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// RetrieveCheckoutSession fetches a session with its subscription and
	// line-item detail expanded.
	RetrieveCheckoutSession(ctx context.Context, id string) (*SessionDetail, error)

	// VerifyEvent validates a webhook payload against its signature and
	// returns a normalized event. Returns ErrSignatureInvalid when the
	// signature does not check out.
	VerifyEvent(payload []byte, signature string) (*Event, error)

	// CancelAtPeriodEnd schedules a provider subscription for cancellation
	// at the end of the current billing period.
	CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error
}

// CheckoutRequest contains data needed to create a checkout session.
// When PriceID is empty the provider provisions a product+price pair
// matching PlanName/Amount/Currency/Interval before creating the session.
type CheckoutRequest struct {
	UserID     string
	PlanID     string
	PlanName   string
	PlanType   string // normalized plan-type tag, attached as metadata for reconciliation
	PriceID    string // provider's pre-provisioned price ID, empty for dynamic pricing
	Amount     int64  // minor units
	Currency   string
	Interval   BillingInterval
	SuccessURL string
	CancelURL  string
}

// CheckoutSession identifies a hosted checkout session.
type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// SessionDetail is the normalized view of a retrieved checkout session.
type SessionDetail struct {
	ID                  string
	PaymentStatus       string
	Metadata            map[string]string
	LineItemDescription string // first line item's description, when available
	CustomerEmail       string
	AmountTotal         int64
	Currency            string
	Subscription        *SubscriptionDetail // nil when no subscription is attached
}

// SubscriptionDetail is the provider's view of the attached subscription.
type SubscriptionDetail struct {
	ID     string
	Status string
	// CurrentPeriodEnd carries the provider's raw period-end value. It is
	// coerced to epoch seconds during reconciliation; see epochSeconds.
	CurrentPeriodEnd any
}

// Event is a normalized webhook event from the billing provider.
type Event struct {
	Type             string // one of the Event* constants, or the raw provider event name
	SessionID        string // set for checkout completion events
	SubscriptionID   string
	Status           string
	UserID           string // recovered from client reference or metadata
	CurrentPeriodEnd any
}
