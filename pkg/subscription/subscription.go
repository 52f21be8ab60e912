package subscription

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Record is the per-user subscription state mirrored from the billing
// provider. It is persisted as the `subscription` sub-document of the user
// record and mutated only by reconciliation or webhook signals.
//
// A Record with IsActive=false is treated as the free tier regardless of
// the stored PlanID; stale plan IDs on inactive records never grant access.
type Record struct {
	IsActive         bool   `json:"isActive" bson:"isActive"`
	PlanID           string `json:"plan" bson:"plan"`
	SubscriptionID   string `json:"subscriptionId" bson:"subscriptionId"`     // provider's subscription ID, empty if none
	CurrentPeriodEnd *int64 `json:"currentPeriodEnd" bson:"currentPeriodEnd"` // epoch seconds, nil when unknown
}

// FreeRecord returns an inactive record on the given free plan, the state
// every user starts in.
func FreeRecord(freePlanID string) Record {
	return Record{IsActive: false, PlanID: freePlanID}
}

// UserRecord is the persisted per-user document. Profile fields are owned
// by the login flow, the subscription sub-document by reconciliation;
// writes to one must not clobber the other.
type UserRecord struct {
	UID          string `json:"uid" bson:"uid"`
	Name         string `json:"name" bson:"name"`
	Email        string `json:"email" bson:"email"`
	ProfilePic   string `json:"profilePic" bson:"profilePic"`
	Subscription Record `json:"subscription" bson:"subscription"`
	CreatedAt    int64  `json:"createdAt" bson:"createdAt"` // epoch milliseconds
	LastLogin    int64  `json:"lastLogin" bson:"lastLogin"` // epoch milliseconds
}

// epochSeconds coerces a provider-reported period-end value to integer
// epoch seconds. Providers report it as a native number in API responses
// and occasionally as a numeric string in raw webhook payloads. Anything
// unparseable yields nil rather than an error.
func epochSeconds(v any) *int64 {
	switch t := v.(type) {
	case nil:
		return nil
	case int64:
		if t == 0 {
			return nil
		}
		return &t
	case int:
		n := int64(t)
		if n == 0 {
			return nil
		}
		return &n
	case float64:
		n := int64(t)
		if n == 0 {
			return nil
		}
		return &n
	case json.Number:
		return epochSeconds(string(t))
	case string:
		s := strings.TrimSpace(t)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epochSeconds(n)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return epochSeconds(f)
		}
		return nil
	default:
		return nil
	}
}
