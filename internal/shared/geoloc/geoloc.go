// Package geoloc resolves a reference coordinate for proximity features.
// Location is a boundary call with exactly two outcomes: a provider
// coordinate or the configured fallback. Failures are absorbed, never
// surfaced.
package geoloc

import (
	"context"

	"github.com/rs/zerolog/log"

	"lebonpont/internal/domain"
)

// Provider obtains a device/visitor coordinate. Implementations may fail;
// the adapter turns every failure into the fallback.
type Provider interface {
	Locate(ctx context.Context) (domain.Coord, error)
}

type ProviderFunc func(ctx context.Context) (domain.Coord, error)

func (f ProviderFunc) Locate(ctx context.Context) (domain.Coord, error) { return f(ctx) }

type Adapter struct {
	provider Provider
	fallback domain.Coord
}

// New builds an adapter around provider. A nil provider means "no capability"
// and always yields the fallback.
func New(provider Provider, fallback domain.Coord) *Adapter {
	return &Adapter{provider: provider, fallback: fallback}
}

// Locate returns the provider coordinate or the fallback. Never errors.
func (a *Adapter) Locate(ctx context.Context) domain.Coord {
	if a.provider == nil {
		return a.fallback
	}
	c, err := a.provider.Locate(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("geolocation unavailable, using fallback")
		return a.fallback
	}
	return c
}
