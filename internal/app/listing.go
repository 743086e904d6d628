package app

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"lebonpont/internal/domain"
	"lebonpont/internal/shared/geo"
)

// ListingService serves the map/list view: it fetches the full bridge set
// once per view-session (cache-aside with a short TTL, concurrent fetches
// collapsed) and applies in-memory filtering and proximity ordering.
type ListingService struct {
	store    domain.BridgeStore
	cache    domain.Cache
	cacheTTL time.Duration
	group    singleflight.Group
}

func NewListingService(store domain.BridgeStore, cache domain.Cache, ttl time.Duration) *ListingService {
	return &ListingService{store: store, cache: cache, cacheTTL: ttl}
}

const bridgesKey = "bridges:all"

// Snapshot returns the full fetched set, in remote order.
func (s *ListingService) Snapshot(ctx context.Context) ([]domain.Bridge, error) {
	var cached []domain.Bridge
	if ok, _ := s.cache.Get(ctx, bridgesKey, &cached); ok {
		return cached, nil
	}
	v, err, _ := s.group.Do(bridgesKey, func() (any, error) {
		bs, err := s.store.ListBridges(ctx)
		if err != nil {
			return nil, err
		}
		_ = s.cache.Set(ctx, bridgesKey, bs, int(s.cacheTTL.Seconds()))
		return bs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Bridge), nil
}

// Get returns one bridge with comments embedded. Single-record reads bypass
// the list cache so fresh comments are always visible.
func (s *ListingService) Get(ctx context.Context, id string) (domain.Bridge, error) {
	return s.store.GetBridge(ctx, id)
}

// Invalidate drops the cached full set after a successful submission.
func (s *ListingService) Invalidate(ctx context.Context) {
	_ = s.cache.Del(ctx, bridgesKey)
}

// Filter applies the free-text query and region selector conjunctively,
// preserving input order. An empty query or region is a no-op. The text
// match is a case-insensitive substring test of the query as typed,
// whitespace included, against name, city and address; absent fields
// never match.
func Filter(bridges []domain.Bridge, query, region string) []domain.Bridge {
	q := strings.ToLower(query)
	out := make([]domain.Bridge, 0, len(bridges))
	for _, b := range bridges {
		if q != "" && !matchesText(b, q) {
			continue
		}
		if region != "" && (b.Region == nil || *b.Region != region) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func matchesText(b domain.Bridge, q string) bool {
	if strings.Contains(strings.ToLower(b.Name), q) {
		return true
	}
	if b.City != nil && strings.Contains(strings.ToLower(*b.City), q) {
		return true
	}
	if b.Address != nil && strings.Contains(strings.ToLower(*b.Address), q) {
		return true
	}
	return false
}

// SortByProximity returns a new slice ordered by ascending great-circle
// distance from ref. Records without coordinates have an undefined distance
// and sort last, keeping their relative order; the input is not mutated.
func SortByProximity(bridges []domain.Bridge, ref domain.Coord) []domain.Bridge {
	type keyed struct {
		b domain.Bridge
		d float64
	}
	ks := make([]keyed, len(bridges))
	for i, b := range bridges {
		d := math.NaN()
		if b.HasCoord() {
			d = geo.HaversineKm(ref.Lat, ref.Lng, *b.Lat, *b.Lng)
		}
		ks[i] = keyed{b: b, d: d}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		if math.IsNaN(ks[i].d) {
			return false
		}
		if math.IsNaN(ks[j].d) {
			return true
		}
		return ks[i].d < ks[j].d
	})
	out := make([]domain.Bridge, len(ks))
	for i, k := range ks {
		out[i] = k.b
	}
	return out
}

// Regions returns the distinct non-empty region values present in bridges,
// in first-seen order, for populating the filter selector.
func Regions(bridges []domain.Bridge) []string {
	seen := make(map[string]struct{}, len(bridges))
	var out []string
	for _, b := range bridges {
		if b.Region == nil || *b.Region == "" {
			continue
		}
		if _, ok := seen[*b.Region]; ok {
			continue
		}
		seen[*b.Region] = struct{}{}
		out = append(out, *b.Region)
	}
	return out
}
