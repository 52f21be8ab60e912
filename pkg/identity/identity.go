package identity

// Identity is the authenticated user profile as reported by the sign-in
// provider. It carries no authorization data; entitlements live with the
// subscription record.
type Identity struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	PhotoURL    string `json:"photoURL"`
}
