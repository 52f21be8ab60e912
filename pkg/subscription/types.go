package subscription

// Feature represents a plan-specific capability that can be enabled/disabled.
type Feature string

const (
	FeatureBasicSearch     Feature = "basic_search"
	FeatureAdvancedSearch  Feature = "advanced_search"
	FeatureFileUpload      Feature = "file_upload"
	FeatureStockData       Feature = "stock_data"
	FeatureWeatherData     Feature = "weather_data"
	FeaturePrioritySupport Feature = "priority_support"
	FeatureExportHistory   Feature = "export_history"
)

// Money represents a monetary amount in the smallest currency unit.
// For example, $10.00 USD would be Amount: 1000, Currency: "usd".
type Money struct {
	Amount   int64  `yaml:"amount"`   // Amount in smallest currency unit (cents for USD)
	Currency string `yaml:"currency"` // ISO 4217 currency code, lowercased
}

// BillingInterval represents the billing frequency for a subscription plan.
type BillingInterval string

const (
	BillingIntervalNone    BillingInterval = "none" // Free plans with no billing
	BillingIntervalMonthly BillingInterval = "monthly"
	BillingIntervalAnnual  BillingInterval = "annual"
)

// Payment and subscription states as reported by the billing provider.
const (
	PaymentStatusPaid        = "paid"
	SubscriptionStatusActive = "active"
)

// Checkout session metadata keys. The same values are attached at checkout
// time and read back during reconciliation, so both sides share these
// constants. planType and planName overlap: reconciliation must recover
// the plan even when a dynamically provisioned price cannot be looked up
// later, and sessions created before planType existed only carry the name.
const (
	MetadataUserID   = "userId"
	MetadataPlanName = "planName"
	MetadataPlanType = "planType"
)

// Normalized provider webhook event names consumed by the service.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)
