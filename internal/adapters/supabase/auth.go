// internal/adapters/supabase/auth.go
package supabase

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"lebonpont/internal/domain"
)

// Auth implements domain.AuthProvider against the hosted auth API. It mirrors
// the current session (access token plus identity) in memory; credentials are
// never persisted.
type Auth struct {
	c *Client

	mu       sync.Mutex
	token    string
	events   chan domain.AuthEvent
	released bool
}

func NewAuth(c *Client) *Auth {
	return &Auth{c: c, events: make(chan domain.AuthEvent, 8)}
}

type authUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type authSession struct {
	AccessToken string    `json:"access_token"`
	User        *authUser `json:"user"`

	// signup without auto-confirm returns a bare user object
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (a *Auth) endpoint(p string) string { return fmt.Sprintf("%s/auth/v1/%s", a.c.base, p) }

func (a *Auth) SignUp(ctx context.Context, email, password string) (domain.Identity, error) {
	var sess authSession
	body := map[string]string{"email": email, "password": password}
	if err := a.c.postJSON(ctx, a.endpoint("signup"), body, &sess, nil); err != nil {
		return domain.Identity{}, err
	}
	id := sess.identity()
	if sess.AccessToken != "" {
		a.setToken(sess.AccessToken)
		a.emit(domain.AuthEvent{Kind: domain.SignedIn, Identity: &id})
	}
	return id, nil
}

func (a *Auth) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	var sess authSession
	body := map[string]string{"email": email, "password": password}
	if err := a.c.postJSON(ctx, a.endpoint("token?grant_type=password"), body, &sess, nil); err != nil {
		return domain.Identity{}, err
	}
	id := sess.identity()
	a.setToken(sess.AccessToken)
	a.emit(domain.AuthEvent{Kind: domain.SignedIn, Identity: &id})
	return id, nil
}

func (a *Auth) SignOut(ctx context.Context) error {
	token := a.AccessToken()
	// local session state clears even when the remote call fails
	a.setToken("")
	a.emit(domain.AuthEvent{Kind: domain.SignedOut})
	if token == "" {
		return nil
	}
	return a.c.postJSON(WithToken(ctx, token), a.endpoint("logout"), struct{}{}, nil, nil)
}

func (a *Auth) CurrentUser(ctx context.Context) (domain.Identity, error) {
	token, ok := TokenFrom(ctx)
	if !ok {
		token = a.AccessToken()
	}
	if token == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	var u authUser
	if err := a.c.getJSON(WithToken(ctx, token), a.endpoint("user"), &u); err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{ID: u.ID, Email: u.Email}, nil
}

func (a *Auth) Subscribe() (<-chan domain.AuthEvent, func()) {
	return a.events, func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		if !a.released {
			a.released = true
			close(a.events)
		}
	}
}

// AccessToken returns the token of the mirrored session, empty when signed out.
func (a *Auth) AccessToken() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token
}

func (a *Auth) setToken(t string) {
	a.mu.Lock()
	a.token = t
	a.mu.Unlock()
}

// emit never blocks; a slow or absent consumer drops the event.
func (a *Auth) emit(ev domain.AuthEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		return
	}
	select {
	case a.events <- ev:
	default:
	}
}

func (s authSession) identity() domain.Identity {
	if s.User != nil {
		return domain.Identity{ID: s.User.ID, Email: s.User.Email}
	}
	if s.ID != "" {
		return domain.Identity{ID: s.ID, Email: s.Email}
	}
	if id, err := IdentityFromToken(s.AccessToken); err == nil {
		return id
	}
	return domain.Identity{}
}

// IdentityFromToken extracts the subject and email claims without verifying
// the signature. Verification belongs to the issuing service; callers only
// need the identity the token was minted for.
func IdentityFromToken(token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, fmt.Errorf("empty token")
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return domain.Identity{}, err
	}
	id := domain.Identity{}
	if sub, ok := claims["sub"].(string); ok {
		id.ID = sub
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if id.ID == "" {
		return domain.Identity{}, fmt.Errorf("token has no subject")
	}
	return id, nil
}
