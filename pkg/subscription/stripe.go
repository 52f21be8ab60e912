package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds configuration for the Stripe billing provider.
type StripeConfig struct {
	SecretKey      string        `env:"STRIPE_SECRET_KEY,required"`
	WebhookSecret  string        `env:"STRIPE_WEBHOOK_SECRET,required"`
	RequestTimeout time.Duration `env:"STRIPE_REQUEST_TIMEOUT" envDefault:"15s"`
}

// StripeProvider implements Provider for Stripe.
type StripeProvider struct {
	api    *client.API
	config StripeConfig
}

// NewStripeProvider creates a new Stripe billing provider.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if config.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 15 * time.Second
	}

	return &StripeProvider{
		api:    client.New(config.SecretKey, nil),
		config: config,
	}, nil
}

// CreateCheckoutSession creates a subscription-mode hosted checkout session.
// When the request carries no pre-provisioned price ID, a product+price
// pair matching the plan is minted first; the session metadata carries
// enough redundancy for reconciliation to recover the plan without ever
// looking that price up again.
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.UserID == "" {
		return nil, errors.New("user ID is required")
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	priceID := req.PriceID
	if priceID == "" {
		product, err := p.api.Products.New(&stripe.ProductParams{
			Params:      stripe.Params{Context: ctx},
			Name:        stripe.String(req.PlanName),
			Description: stripe.String(fmt.Sprintf("%s subscription plan", req.PlanName)),
		})
		if err != nil {
			return nil, errors.Join(ErrUpstreamFailure, err)
		}

		price, err := p.api.Prices.New(&stripe.PriceParams{
			Params:     stripe.Params{Context: ctx},
			UnitAmount: stripe.Int64(req.Amount),
			Currency:   stripe.String(req.Currency),
			Recurring: &stripe.PriceRecurringParams{
				Interval: stripe.String(recurringInterval(req.Interval)),
			},
			Product: stripe.String(product.ID),
		})
		if err != nil {
			return nil, errors.Join(ErrUpstreamFailure, err)
		}
		priceID = price.ID
	}

	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(priceID),
			Quantity: stripe.Int64(1),
		}},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		// Copy the user reference onto the subscription itself so
		// later lifecycle webhooks can be attributed without a session.
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				MetadataUserID:   req.UserID,
				MetadataPlanType: req.PlanType,
			},
		},
	}
	params.AddMetadata(MetadataUserID, req.UserID)
	params.AddMetadata(MetadataPlanName, req.PlanName)
	params.AddMetadata(MetadataPlanType, req.PlanType)

	sess, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Join(ErrUpstreamFailure, err)
	}
	if sess.URL == "" {
		return nil, ErrNoCheckoutURL
	}

	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// RetrieveCheckoutSession fetches a session with subscription and line-item
// detail expanded and normalizes it.
func (p *StripeProvider) RetrieveCheckoutSession(ctx context.Context, id string) (*SessionDetail, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("subscription")
	params.AddExpand("line_items")

	sess, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, errors.Join(ErrUpstreamFailure, err)
	}

	detail := &SessionDetail{
		ID:            sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
		Metadata:      sess.Metadata,
		AmountTotal:   sess.AmountTotal,
		Currency:      string(sess.Currency),
	}
	if sess.CustomerDetails != nil {
		detail.CustomerEmail = sess.CustomerDetails.Email
	}
	if sess.LineItems != nil && len(sess.LineItems.Data) > 0 {
		detail.LineItemDescription = sess.LineItems.Data[0].Description
	}
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		detail.Subscription = &SubscriptionDetail{
			ID:               sess.Subscription.ID,
			Status:           string(sess.Subscription.Status),
			CurrentPeriodEnd: sess.Subscription.CurrentPeriodEnd,
		}
	}

	return detail, nil
}

// VerifyEvent validates a webhook payload against its signature and maps
// the event onto the normalized form.
func (p *StripeProvider) VerifyEvent(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEvent(payload, signature, p.config.WebhookSecret)
	if err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}

	out := &Event{Type: string(ev.Type)}

	switch out.Type {
	case EventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
			return nil, fmt.Errorf("parse checkout session event: %w", err)
		}
		out.SessionID = sess.ID
		out.UserID = sess.ClientReferenceID
		if out.UserID == "" {
			out.UserID = sess.Metadata[MetadataUserID]
		}

	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("parse subscription event: %w", err)
		}
		out.SubscriptionID = sub.ID
		out.Status = string(sub.Status)
		out.CurrentPeriodEnd = sub.CurrentPeriodEnd
		out.UserID = sub.Metadata[MetadataUserID]

	case EventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("parse invoice event: %w", err)
		}
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
		}
		if inv.SubscriptionDetails != nil {
			out.UserID = inv.SubscriptionDetails.Metadata[MetadataUserID]
		}
	}

	return out, nil
}

// CancelAtPeriodEnd schedules a subscription for cancellation at the end of
// the current billing period.
func (p *StripeProvider) CancelAtPeriodEnd(ctx context.Context, subscriptionID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
	defer cancel()

	_, err := p.api.Subscriptions.Update(subscriptionID, &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	})
	if err != nil {
		return errors.Join(ErrUpstreamFailure, err)
	}
	return nil
}

func recurringInterval(interval BillingInterval) string {
	if interval == BillingIntervalAnnual {
		return string(stripe.PriceRecurringIntervalYear)
	}
	return string(stripe.PriceRecurringIntervalMonth)
}
