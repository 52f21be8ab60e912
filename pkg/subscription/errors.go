package subscription

import "errors"

var (
	ErrPlanNotFound             = errors.New("subscription plan not found")
	ErrInvalidPlan              = errors.New("invalid subscription plan")
	ErrInvalidPlanConfiguration = errors.New("invalid subscription plan configuration")
	ErrFailedToLoadPlans        = errors.New("failed to load subscription plans")

	ErrPaymentIncomplete = errors.New("payment not completed or no subscription attached")
	ErrSignatureInvalid  = errors.New("webhook signature verification failed")
	ErrUpstreamFailure   = errors.New("billing provider request failed")

	ErrUserNotFound = errors.New("user record not found")

	// Provider-specific errors
	ErrMissingAPIKey        = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret = errors.New("billing provider webhook secret is required")
	ErrNoCheckoutURL        = errors.New("no checkout URL returned from provider")
)
