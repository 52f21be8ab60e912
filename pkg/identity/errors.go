package identity

import "errors"

var (
	ErrInvalidState   = errors.New("identity: invalid or expired state")
	ErrInvalidCode    = errors.New("identity: invalid authorization code")
	ErrNoPrimaryEmail = errors.New("identity: provider returned no email")
	ErrStateStorage   = errors.New("identity: failed to store state")
)
