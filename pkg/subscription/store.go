package subscription

import "context"

// UserStore defines the interface for user record persistence. Records are
// keyed by user ID, so cross-user contention cannot occur and no in-process
// locking is needed beyond what the store natively guarantees.
type UserStore interface {
	// Get retrieves a user record by user ID.
	// Returns ErrUserNotFound if no record exists.
	Get(ctx context.Context, uid string) (*UserRecord, error)

	// SaveSubscription upserts the subscription sub-document for a user.
	// The write merges: profile fields already stored for the user must
	// not be clobbered, and a skeleton record is created when none exists.
	SaveSubscription(ctx context.Context, uid string, rec Record) error

	// SaveProfile upserts profile fields at login. When the record already
	// exists only the profile fields and last-login timestamp change; the
	// stored subscription is preserved. When it does not, the given
	// record's subscription is used as the initial state.
	SaveProfile(ctx context.Context, user UserRecord) error
}
