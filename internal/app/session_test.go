package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lebonpont/internal/app"
	"lebonpont/internal/domain"
)

type fakeAuth struct {
	mu         sync.Mutex
	current    domain.Identity
	currentErr error
	// CurrentUser blocks on gate when set, to force event-first ordering.
	gate chan struct{}

	events   chan domain.AuthEvent
	released bool
	once     sync.Once
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{events: make(chan domain.AuthEvent)}
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string) (domain.Identity, error) {
	return domain.Identity{}, nil
}
func (f *fakeAuth) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	return domain.Identity{}, nil
}
func (f *fakeAuth) SignOut(ctx context.Context) error { return nil }

func (f *fakeAuth) CurrentUser(ctx context.Context) (domain.Identity, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.currentErr
}

func (f *fakeAuth) Subscribe() (<-chan domain.AuthEvent, func()) {
	return f.events, func() {
		f.once.Do(func() {
			f.released = true
			close(f.events)
		})
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestSession_InitialQuerySetsIdentity(t *testing.T) {
	auth := newFakeAuth()
	auth.current = alice

	s := app.NewSession(context.Background(), auth)
	defer s.Close()

	waitFor(t, func() bool { return !s.Loading() })
	id, ok := s.Identity()
	if !ok || id.ID != alice.ID {
		t.Fatalf("expected alice, got %+v ok=%v", id, ok)
	}
}

func TestSession_InitialQueryFailureMeansNotLoggedIn(t *testing.T) {
	auth := newFakeAuth()
	auth.currentErr = errors.New("network down")

	s := app.NewSession(context.Background(), auth)
	defer s.Close()

	waitFor(t, func() bool { return !s.Loading() })
	if _, ok := s.Identity(); ok {
		t.Fatalf("failed initial query must leave identity absent")
	}
}

func TestSession_EventsDriveStateAfterInit(t *testing.T) {
	auth := newFakeAuth()
	s := app.NewSession(context.Background(), auth)
	defer s.Close()

	waitFor(t, func() bool { return !s.Loading() })

	bob := domain.Identity{ID: "user-2", Email: "bob@example.com"}
	auth.events <- domain.AuthEvent{Kind: domain.SignedIn, Identity: &bob}
	waitFor(t, func() bool {
		id, ok := s.Identity()
		return ok && id.ID == bob.ID
	})

	auth.events <- domain.AuthEvent{Kind: domain.SignedOut}
	waitFor(t, func() bool {
		_, ok := s.Identity()
		return !ok
	})
}

func TestSession_EventBeforeInitialQueryIsLastWriteWins(t *testing.T) {
	auth := newFakeAuth()
	auth.gate = make(chan struct{})
	auth.current = alice

	s := app.NewSession(context.Background(), auth)
	defer s.Close()

	// first the event arrives, then the (slower) initial query resolves
	bob := domain.Identity{ID: "user-2"}
	auth.events <- domain.AuthEvent{Kind: domain.SignedIn, Identity: &bob}
	waitFor(t, func() bool { return !s.Loading() })

	close(auth.gate)
	waitFor(t, func() bool {
		id, ok := s.Identity()
		return ok && id.ID == alice.ID
	})
}

func TestSession_CloseReleasesSubscription(t *testing.T) {
	auth := newFakeAuth()
	s := app.NewSession(context.Background(), auth)

	waitFor(t, func() bool { return !s.Loading() })
	s.Close()
	if !auth.released {
		t.Fatalf("expected subscription released on Close")
	}
}
