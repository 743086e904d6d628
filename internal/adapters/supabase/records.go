// internal/adapters/supabase/records.go
package supabase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"lebonpont/internal/domain"
)

// Store implements domain.BridgeStore against the hosted record API
// (PostgREST dialect: filters as query params, Prefer header to get the
// inserted representation back).
type Store struct {
	c *Client
}

func NewStore(c *Client) *Store { return &Store{c: c} }

func (s *Store) rest(table, query string) string {
	u := fmt.Sprintf("%s/rest/v1/%s", s.c.base, table)
	if query != "" {
		u += "?" + query
	}
	return u
}

// returnRepresentation asks the record API to echo inserted/updated rows.
var returnRepresentation = http.Header{"Prefer": []string{"return=representation"}}

func (s *Store) ListBridges(ctx context.Context) ([]domain.Bridge, error) {
	var recs []bridgeRecord
	if err := s.c.getJSON(ctx, s.rest("bridges", "select=*"), &recs); err != nil {
		return nil, err
	}
	out := make([]domain.Bridge, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) GetBridge(ctx context.Context, id string) (domain.Bridge, error) {
	q := url.Values{}
	q.Set("select", "*,comments(*)")
	q.Set("id", "eq."+id)
	var recs []bridgeRecord
	if err := s.c.getJSON(ctx, s.rest("bridges", q.Encode()), &recs); err != nil {
		return domain.Bridge{}, err
	}
	if len(recs) == 0 {
		return domain.Bridge{}, domain.ErrNotFound
	}
	return recs[0].toDomain(), nil
}

func (s *Store) InsertBridge(ctx context.Context, b domain.Bridge) (domain.Bridge, error) {
	var recs []bridgeRecord
	err := s.c.postJSON(ctx, s.rest("bridges", ""), []bridgeRecord{bridgeFromDomain(b)}, &recs, returnRepresentation)
	if err != nil {
		return domain.Bridge{}, err
	}
	if len(recs) == 0 {
		return domain.Bridge{}, domain.ErrNotFound
	}
	return recs[0].toDomain(), nil
}

func (s *Store) UpdateBridge(ctx context.Context, id string, patch domain.BridgePatch) (domain.Bridge, error) {
	body := map[string]any{}
	if patch.Name != nil {
		body["name"] = *patch.Name
	}
	if patch.Address != nil {
		body["address"] = *patch.Address
	}
	if patch.City != nil {
		body["city"] = *patch.City
	}
	if patch.Region != nil {
		body["region"] = *patch.Region
	}
	if patch.Description != nil {
		body["description"] = *patch.Description
	}
	if patch.Images != nil {
		body["images"] = patch.Images
	}
	q := url.Values{}
	q.Set("id", "eq."+id)
	var recs []bridgeRecord
	if err := s.c.patchJSON(ctx, s.rest("bridges", q.Encode()), body, &recs, returnRepresentation); err != nil {
		return domain.Bridge{}, err
	}
	if len(recs) == 0 {
		return domain.Bridge{}, domain.ErrNotFound
	}
	return recs[0].toDomain(), nil
}

func (s *Store) InsertComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	var recs []commentRecord
	err := s.c.postJSON(ctx, s.rest("comments", ""), []commentRecord{commentFromDomain(c)}, &recs, returnRepresentation)
	if err != nil {
		return domain.Comment{}, err
	}
	if len(recs) == 0 {
		return domain.Comment{}, domain.ErrNotFound
	}
	return recs[0].toDomain(), nil
}

func (s *Store) InsertRating(ctx context.Context, r domain.Rating) (domain.Rating, error) {
	var recs []ratingRecord
	err := s.c.postJSON(ctx, s.rest("ratings", ""), []ratingRecord{ratingFromDomain(r)}, &recs, returnRepresentation)
	if err != nil {
		return domain.Rating{}, err
	}
	if len(recs) == 0 {
		return domain.Rating{}, domain.ErrNotFound
	}
	return recs[0].toDomain(), nil
}

func (s *Store) BridgesByCreator(ctx context.Context, userID string) ([]domain.Bridge, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("created_by", "eq."+userID)
	var recs []bridgeRecord
	if err := s.c.getJSON(ctx, s.rest("bridges", q.Encode()), &recs); err != nil {
		return nil, err
	}
	out := make([]domain.Bridge, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) CommentsByAuthor(ctx context.Context, userID string) ([]domain.Comment, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("user_id", "eq."+userID)
	var recs []commentRecord
	if err := s.c.getJSON(ctx, s.rest("comments", q.Encode()), &recs); err != nil {
		return nil, err
	}
	out := make([]domain.Comment, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ---- Wire records ----

type bridgeRecord struct {
	ID          string  `json:"id,omitempty"`
	Name        string  `json:"name"`
	Address     *string `json:"address,omitempty"`
	City        *string `json:"city,omitempty"`
	Region      *string `json:"region,omitempty"`
	Description *string `json:"description,omitempty"`

	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	Images []string `json:"images"`

	RainProtection bool `json:"rain_protection"`
	NearbyToilets  bool `json:"nearby_toilets"`
	DrinkingWater  bool `json:"drinking_water"`
	Lighting       bool `json:"lighting"`

	ToiletsDistance *int `json:"toilets_distance,omitempty"`
	WaterDistance   *int `json:"water_distance,omitempty"`

	SecurityLevel string `json:"security_level"`
	TrafficLevel  string `json:"traffic_level"`
	NoiseLevel    string `json:"noise_level"`
	ViewQuality   string `json:"view_quality"`

	CreatedBy string     `json:"created_by"`
	CreatedAt *time.Time `json:"created_at,omitempty"`

	AverageRating        float64 `json:"average_rating"`
	AverageHygiene       float64 `json:"average_hygiene"`
	AverageDiscretion    float64 `json:"average_discretion"`
	AverageAccessibility float64 `json:"average_accessibility"`
	RatingsCount         int     `json:"ratings_count"`

	Comments []commentRecord `json:"comments,omitempty"`
}

func (r bridgeRecord) toDomain() domain.Bridge {
	b := domain.Bridge{
		ID:          r.ID,
		Name:        r.Name,
		Address:     r.Address,
		City:        r.City,
		Region:      r.Region,
		Description: r.Description,
		Lat:         r.Latitude,
		Lng:         r.Longitude,
		Images:      r.Images,

		RainProtection: r.RainProtection,
		NearbyToilets:  r.NearbyToilets,
		DrinkingWater:  r.DrinkingWater,
		Lighting:       r.Lighting,

		ToiletsDistance: r.ToiletsDistance,
		WaterDistance:   r.WaterDistance,

		SecurityLevel: domain.Level(r.SecurityLevel),
		TrafficLevel:  domain.Level(r.TrafficLevel),
		NoiseLevel:    domain.Level(r.NoiseLevel),
		ViewQuality:   domain.ViewQuality(r.ViewQuality),

		CreatedBy: r.CreatedBy,

		Aggregates: domain.RatingAggregates{
			AverageRating:        r.AverageRating,
			AverageHygiene:       r.AverageHygiene,
			AverageDiscretion:    r.AverageDiscretion,
			AverageAccessibility: r.AverageAccessibility,
			RatingsCount:         r.RatingsCount,
			Source:               domain.AggregateServer,
		},
	}
	if r.CreatedAt != nil {
		b.CreatedAt = *r.CreatedAt
	}
	for _, c := range r.Comments {
		b.Comments = append(b.Comments, c.toDomain())
	}
	return b
}

func bridgeFromDomain(b domain.Bridge) bridgeRecord {
	rec := bridgeRecord{
		Name:        b.Name,
		Address:     b.Address,
		City:        b.City,
		Region:      b.Region,
		Description: b.Description,
		Latitude:    b.Lat,
		Longitude:   b.Lng,
		Images:      b.Images,

		RainProtection: b.RainProtection,
		NearbyToilets:  b.NearbyToilets,
		DrinkingWater:  b.DrinkingWater,
		Lighting:       b.Lighting,

		ToiletsDistance: b.ToiletsDistance,
		WaterDistance:   b.WaterDistance,

		SecurityLevel: string(b.SecurityLevel),
		TrafficLevel:  string(b.TrafficLevel),
		NoiseLevel:    string(b.NoiseLevel),
		ViewQuality:   string(b.ViewQuality),

		CreatedBy: b.CreatedBy,

		AverageRating:        b.Aggregates.AverageRating,
		AverageHygiene:       b.Aggregates.AverageHygiene,
		AverageDiscretion:    b.Aggregates.AverageDiscretion,
		AverageAccessibility: b.Aggregates.AverageAccessibility,
		RatingsCount:         b.Aggregates.RatingsCount,
	}
	if !b.CreatedAt.IsZero() {
		t := b.CreatedAt
		rec.CreatedAt = &t
	}
	return rec
}

type commentRecord struct {
	ID        string     `json:"id,omitempty"`
	BridgeID  string     `json:"bridge_id"`
	UserID    string     `json:"user_id"`
	UserEmail string     `json:"user_email"`
	Content   string     `json:"content"`
	Images    []string   `json:"images,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (r commentRecord) toDomain() domain.Comment {
	c := domain.Comment{
		ID:        r.ID,
		BridgeID:  r.BridgeID,
		UserID:    r.UserID,
		UserEmail: r.UserEmail,
		Content:   r.Content,
		Images:    r.Images,
	}
	if r.CreatedAt != nil {
		c.CreatedAt = *r.CreatedAt
	}
	return c
}

func commentFromDomain(c domain.Comment) commentRecord {
	rec := commentRecord{
		BridgeID:  c.BridgeID,
		UserID:    c.UserID,
		UserEmail: c.UserEmail,
		Content:   c.Content,
		Images:    c.Images,
	}
	if !c.CreatedAt.IsZero() {
		t := c.CreatedAt
		rec.CreatedAt = &t
	}
	return rec
}

type ratingRecord struct {
	ID            string     `json:"id,omitempty"`
	BridgeID      string     `json:"bridge_id"`
	UserID        string     `json:"user_id"`
	Hygiene       int        `json:"hygiene"`
	Discretion    int        `json:"discretion"`
	Accessibility int        `json:"accessibility"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}

func (r ratingRecord) toDomain() domain.Rating {
	out := domain.Rating{
		ID:            r.ID,
		BridgeID:      r.BridgeID,
		UserID:        r.UserID,
		Hygiene:       r.Hygiene,
		Discretion:    r.Discretion,
		Accessibility: r.Accessibility,
	}
	if r.CreatedAt != nil {
		out.CreatedAt = *r.CreatedAt
	}
	return out
}

func ratingFromDomain(r domain.Rating) ratingRecord {
	return ratingRecord{
		BridgeID:      r.BridgeID,
		UserID:        r.UserID,
		Hygiene:       r.Hygiene,
		Discretion:    r.Discretion,
		Accessibility: r.Accessibility,
	}
}
