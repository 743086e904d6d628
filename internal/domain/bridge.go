package domain

import "time"

// Level grades a bridge attribute (security, traffic, noise).
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// ViewQuality grades the view from under the bridge.
type ViewQuality string

const (
	ViewPoor    ViewQuality = "poor"
	ViewAverage ViewQuality = "average"
	ViewGood    ViewQuality = "good"
)

type Bridge struct {
	ID          string
	Name        string
	Address     *string
	City        *string
	Region      *string
	Description *string

	// Decimal degrees. Nil when the record was stored without a map position;
	// such records still filter normally but have no defined distance.
	Lat *float64
	Lng *float64

	Images []string

	RainProtection bool
	NearbyToilets  bool
	DrinkingWater  bool
	Lighting       bool

	// Meters, only meaningful when the matching flag is set.
	ToiletsDistance *int
	WaterDistance   *int

	SecurityLevel Level
	TrafficLevel  Level
	NoiseLevel    Level
	ViewQuality   ViewQuality

	CreatedBy string
	CreatedAt time.Time

	Aggregates RatingAggregates

	// Only populated on single-record fetches (comments embedded by the
	// remote service).
	Comments []Comment
}

// AggregateSource records where aggregate values came from.
type AggregateSource string

const (
	// AggregateServer: values as last fetched from the remote service.
	AggregateServer AggregateSource = "server"
	// AggregateLocal: values updated optimistically after a rating submission,
	// not yet confirmed against the authoritative store.
	AggregateLocal AggregateSource = "local"
)

// RatingAggregates holds running-mean rating summaries. They are updated
// additively (never recomputed from raw ratings) and are therefore approximate
// under concurrent writers.
type RatingAggregates struct {
	AverageRating        float64
	AverageHygiene       float64
	AverageDiscretion    float64
	AverageAccessibility float64
	RatingsCount         int
	Source               AggregateSource
}

// Apply folds one rating into the aggregates with the incremental
// running-mean formula and marks the result locally derived.
func (a RatingAggregates) Apply(r Rating) RatingAggregates {
	n := float64(a.RatingsCount)
	mean := func(old float64, v int) float64 {
		return (old*n + float64(v)) / (n + 1)
	}
	out := RatingAggregates{
		AverageHygiene:       mean(a.AverageHygiene, r.Hygiene),
		AverageDiscretion:    mean(a.AverageDiscretion, r.Discretion),
		AverageAccessibility: mean(a.AverageAccessibility, r.Accessibility),
		RatingsCount:         a.RatingsCount + 1,
		Source:               AggregateLocal,
	}
	overall := (r.Hygiene + r.Discretion + r.Accessibility)
	out.AverageRating = (a.AverageRating*n + float64(overall)/3.0) / (n + 1)
	return out
}

type Coord struct{ Lat, Lng float64 }

// HasCoord reports whether the bridge carries a usable map position.
func (b Bridge) HasCoord() bool { return b.Lat != nil && b.Lng != nil }
