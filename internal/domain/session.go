package domain

// Identity is the authenticated user as mirrored from the remote auth service.
type Identity struct {
	ID    string
	Email string
}

// AuthEventKind enumerates the auth-state-change notifications delivered by
// the remote service subscription.
type AuthEventKind string

const (
	SignedIn       AuthEventKind = "SIGNED_IN"
	SignedOut      AuthEventKind = "SIGNED_OUT"
	TokenRefreshed AuthEventKind = "TOKEN_REFRESHED"
)

type AuthEvent struct {
	Kind AuthEventKind
	// Nil on SignedOut.
	Identity *Identity
}
