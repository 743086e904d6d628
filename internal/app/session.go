package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"lebonpont/internal/domain"
)

// Session mirrors the remote service's auth state. It is the only component
// that writes the current identity; everything else reads it. The initial
// CurrentUser query and the first subscription event may land in either
// order; last write wins on both the identity and the loading flag.
type Session struct {
	mu       sync.RWMutex
	identity *domain.Identity
	loading  bool

	release func()
	done    chan struct{}
}

// NewSession queries the current user and starts consuming auth events.
// Close must be called to release the subscription.
func NewSession(ctx context.Context, auth domain.AuthProvider) *Session {
	s := &Session{loading: true, done: make(chan struct{})}

	events, release := auth.Subscribe()
	s.release = release

	go s.consume(events)

	go func() {
		id, err := auth.CurrentUser(ctx)
		if err != nil {
			// Not logged in is the normal cold-start outcome, not an error
			// surfaced to the user.
			log.Debug().Err(err).Msg("initial identity query failed")
			s.set(nil)
			return
		}
		s.set(&id)
	}()

	return s
}

func (s *Session) consume(events <-chan domain.AuthEvent) {
	defer close(s.done)
	for ev := range events {
		switch ev.Kind {
		case domain.SignedOut:
			s.set(nil)
		default:
			s.set(ev.Identity)
		}
	}
}

func (s *Session) set(id *domain.Identity) {
	s.mu.Lock()
	s.identity = id
	s.loading = false
	s.mu.Unlock()
}

// Identity returns the current identity and whether one is present.
func (s *Session) Identity() (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return domain.Identity{}, false
	}
	return *s.identity, true
}

// Loading reports whether the initial auth state is still unresolved.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Close releases the auth subscription and waits for the consumer to drain.
func (s *Session) Close() {
	if s.release != nil {
		s.release()
	}
	<-s.done
}
