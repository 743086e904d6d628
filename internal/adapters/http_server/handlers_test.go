package httpserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	httpserver "lebonpont/internal/adapters/http_server"
	"lebonpont/internal/app"
	"lebonpont/internal/domain"
	"lebonpont/internal/shared/geoloc"
)

// ---- fakes ----

type fakeStore struct {
	bridges  []domain.Bridge
	comments []domain.Comment

	insertedBridge  *domain.Bridge
	insertedComment *domain.Comment
	insertedRating  *domain.Rating
}

func (f *fakeStore) ListBridges(ctx context.Context) ([]domain.Bridge, error) {
	return f.bridges, nil
}

func (f *fakeStore) GetBridge(ctx context.Context, id string) (domain.Bridge, error) {
	for _, b := range f.bridges {
		if b.ID == id {
			return b, nil
		}
	}
	return domain.Bridge{}, domain.ErrNotFound
}

func (f *fakeStore) InsertBridge(ctx context.Context, b domain.Bridge) (domain.Bridge, error) {
	b.ID = "new-bridge"
	f.insertedBridge = &b
	return b, nil
}

func (f *fakeStore) UpdateBridge(ctx context.Context, id string, patch domain.BridgePatch) (domain.Bridge, error) {
	for i, b := range f.bridges {
		if b.ID != id {
			continue
		}
		if patch.Name != nil {
			b.Name = *patch.Name
		}
		if patch.Description != nil {
			b.Description = patch.Description
		}
		f.bridges[i] = b
		return b, nil
	}
	return domain.Bridge{}, domain.ErrNotFound
}

func (f *fakeStore) InsertComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	c.ID = "new-comment"
	f.insertedComment = &c
	return c, nil
}

func (f *fakeStore) InsertRating(ctx context.Context, r domain.Rating) (domain.Rating, error) {
	r.ID = "new-rating"
	f.insertedRating = &r
	return r, nil
}

func (f *fakeStore) BridgesByCreator(ctx context.Context, userID string) ([]domain.Bridge, error) {
	var out []domain.Bridge
	for _, b := range f.bridges {
		if b.CreatedBy == userID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) CommentsByAuthor(ctx context.Context, userID string) ([]domain.Comment, error) {
	var out []domain.Comment
	for _, c := range f.comments {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeCache struct{ dels int }

func (f *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) { return false, nil }
func (f *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	return nil
}
func (f *fakeCache) Del(ctx context.Context, key string) error { f.dels++; return nil }

type fakeObjects struct{ uploads []string }

func (f *fakeObjects) Upload(ctx context.Context, path string, blob []byte, contentType string) (string, error) {
	f.uploads = append(f.uploads, path)
	return path, nil
}
func (f *fakeObjects) PublicURL(path string) string { return "https://cdn.test/" + path }

type fakeAuth struct {
	token    string
	identity domain.Identity
	signErr  error
}

func (f *fakeAuth) SignUp(ctx context.Context, email, password string) (domain.Identity, error) {
	return f.identity, f.signErr
}
func (f *fakeAuth) SignIn(ctx context.Context, email, password string) (domain.Identity, error) {
	return f.identity, f.signErr
}
func (f *fakeAuth) SignOut(ctx context.Context) error { return nil }
func (f *fakeAuth) CurrentUser(ctx context.Context) (domain.Identity, error) {
	if f.identity.ID == "" {
		return domain.Identity{}, domain.ErrUnauthorized
	}
	return f.identity, nil
}
func (f *fakeAuth) Subscribe() (<-chan domain.AuthEvent, func()) {
	ch := make(chan domain.AuthEvent)
	return ch, func() { close(ch) }
}
func (f *fakeAuth) AccessToken() string { return f.token }

// ---- helpers ----

func ptr[T any](v T) *T { return &v }

func token(t *testing.T, sub, email string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": sub, "email": email})
	s, err := tok.SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func testBridges() []domain.Bridge {
	return []domain.Bridge{
		{ID: "b1", Name: "Pont Neuf", City: ptr("Paris"), Region: ptr("Île-de-France"),
			Lat: ptr(48.857), Lng: ptr(2.341), CreatedBy: "u1",
			Aggregates: domain.RatingAggregates{AverageRating: 4, RatingsCount: 3, Source: domain.AggregateServer}},
		{ID: "b2", Name: "Pont de la Guillotière", City: ptr("Lyon"), Region: ptr("Auvergne-Rhône-Alpes"),
			Lat: ptr(45.757), Lng: ptr(4.841), CreatedBy: "u2"},
		{ID: "b3", Name: "Passerelle sans position", City: ptr("Nantes")},
	}
}

func newTestServer(t *testing.T, store *fakeStore, cache *fakeCache, auth *fakeAuth) *httptest.Server {
	t.Helper()
	srv := httpserver.New()
	srv.MountHandlers(&httpserver.Handlers{
		Listing: app.NewListingService(store, cache, 2*time.Minute),
		Submit:  app.NewSubmitService(store, &fakeObjects{}, nil),
		Auth:    auth,
		Geo:     geoloc.New(nil, domain.Coord{Lat: 48.8566, Lng: 2.3522}),
		Store:   store,
	})
	ts := httptest.NewServer(srv.Mux())
	t.Cleanup(ts.Close)
	return ts
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

type listResponse struct {
	Bridges []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"bridges"`
	Count int `json:"count"`
}

// ---- tests ----

func TestListBridges_FilterAndProximity(t *testing.T) {
	ts := newTestServer(t, &fakeStore{bridges: testBridges()}, &fakeCache{}, &fakeAuth{})

	resp, err := http.Get(ts.URL + "/v1/bridges")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	all := decode[listResponse](t, resp)
	if all.Count != 3 {
		t.Fatalf("expected 3 bridges, got %d", all.Count)
	}

	resp, err = http.Get(ts.URL + "/v1/bridges?q=lyon")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	filtered := decode[listResponse](t, resp)
	if filtered.Count != 1 || filtered.Bridges[0].ID != "b2" {
		t.Fatalf("unexpected filter result: %+v", filtered)
	}

	// proximity from Lyon: b2 first, positionless b3 last
	resp, err = http.Get(ts.URL + "/v1/bridges?sort=proximity&lat=45.76&lng=4.84")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	sorted := decode[listResponse](t, resp)
	if sorted.Bridges[0].ID != "b2" || sorted.Bridges[2].ID != "b3" {
		t.Fatalf("unexpected proximity order: %+v", sorted.Bridges)
	}

	// no client position: configured fallback (Paris) takes over
	resp, err = http.Get(ts.URL + "/v1/bridges?sort=proximity")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	fallback := decode[listResponse](t, resp)
	if fallback.Bridges[0].ID != "b1" {
		t.Fatalf("expected Paris-first fallback order: %+v", fallback.Bridges)
	}
}

func TestGetBridge_ETagRoundTrip(t *testing.T) {
	ts := newTestServer(t, &fakeStore{bridges: testBridges()}, &fakeCache{}, &fakeAuth{})

	resp, err := http.Get(ts.URL + "/v1/bridges/b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	etag := resp.Header.Get("ETag")
	resp.Body.Close()
	if resp.StatusCode != 200 || etag == "" {
		t.Fatalf("status %d etag %q", resp.StatusCode, etag)
	}

	req, _ := http.NewRequest("GET", ts.URL+"/v1/bridges/b1", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", resp.StatusCode)
	}
}

func TestGetBridge_NotFoundProblem(t *testing.T) {
	ts := newTestServer(t, &fakeStore{}, &fakeCache{}, &fakeAuth{})

	resp, err := http.Get(ts.URL + "/v1/bridges/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestListRegions(t *testing.T) {
	ts := newTestServer(t, &fakeStore{bridges: testBridges()}, &fakeCache{}, &fakeAuth{})

	resp, err := http.Get(ts.URL + "/v1/regions")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got := decode[struct {
		Regions []string `json:"regions"`
	}](t, resp)
	if len(got.Regions) != 2 || got.Regions[0] != "Île-de-France" {
		t.Fatalf("unexpected regions: %+v", got.Regions)
	}
}

func TestCreateBridge_RequiresAuth(t *testing.T) {
	ts := newTestServer(t, &fakeStore{}, &fakeCache{}, &fakeAuth{})

	resp, err := http.Post(ts.URL+"/v1/bridges", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateBridge_MultipartInsertsAndInvalidates(t *testing.T) {
	store := &fakeStore{}
	cache := &fakeCache{}
	ts := newTestServer(t, store, cache, &fakeAuth{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("name", "Pont des Arts")
	_ = mw.WriteField("city", "Paris")
	_ = mw.WriteField("latitude", "48.858")
	_ = mw.WriteField("longitude", "2.337")
	_ = mw.WriteField("rain_protection", "true")
	fw, _ := mw.CreateFormFile("images", "a.jpg")
	_, _ = fw.Write([]byte("jpegbytes"))
	mw.Close()

	req, _ := http.NewRequest("POST", ts.URL+"/v1/bridges", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token(t, "u1", "a@b.c"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	got := decode[struct {
		ID     string   `json:"id"`
		Images []string `json:"images"`
	}](t, resp)
	if resp.StatusCode != 201 || got.ID != "new-bridge" {
		t.Fatalf("status %d body %+v", resp.StatusCode, got)
	}
	if len(got.Images) != 1 || !strings.HasSuffix(got.Images[0], "_a.jpg") {
		t.Fatalf("image URL not recorded: %+v", got.Images)
	}
	if store.insertedBridge == nil || store.insertedBridge.CreatedBy != "u1" {
		t.Fatalf("insert missing creator: %+v", store.insertedBridge)
	}
	if !store.insertedBridge.RainProtection {
		t.Fatalf("form flag lost")
	}
	if cache.dels == 0 {
		t.Fatalf("expected list cache invalidation")
	}
}

func TestCreateBridge_MissingFieldsRejected(t *testing.T) {
	ts := newTestServer(t, &fakeStore{}, &fakeCache{}, &fakeAuth{})

	req, _ := http.NewRequest("POST", ts.URL+"/v1/bridges", strings.NewReader(`{"name":"X"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, "u1", "a@b.c"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEditBridge_OwnerOnly(t *testing.T) {
	store := &fakeStore{bridges: testBridges()}
	ts := newTestServer(t, store, &fakeCache{}, &fakeAuth{})

	body := `{"name":"Pont Neuf rénové"}`

	// b1 belongs to u1; u2 must be refused
	req, _ := http.NewRequest("PATCH", ts.URL+"/v1/bridges/b1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, "u2", "b@c.d"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 403 {
		t.Fatalf("expected 403 for non-owner, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest("PATCH", ts.URL+"/v1/bridges/b1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, "u1", "a@b.c"))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	got := decode[struct {
		Name string `json:"name"`
	}](t, resp)
	if resp.StatusCode != 200 || got.Name != "Pont Neuf rénové" {
		t.Fatalf("unexpected edit result: %d %+v", resp.StatusCode, got)
	}
}

func TestCreateComment_WhitespaceRejected(t *testing.T) {
	store := &fakeStore{bridges: testBridges()}
	ts := newTestServer(t, store, &fakeCache{}, &fakeAuth{})

	req, _ := http.NewRequest("POST", ts.URL+"/v1/bridges/b1/comments",
		strings.NewReader(`{"content":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, "u1", "a@b.c"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if store.insertedComment != nil {
		t.Fatalf("whitespace comment must not reach the store")
	}
}

func TestCreateRating_ReturnsLocalAggregates(t *testing.T) {
	store := &fakeStore{bridges: testBridges()}
	ts := newTestServer(t, store, &fakeCache{}, &fakeAuth{})

	req, _ := http.NewRequest("POST", ts.URL+"/v1/bridges/b1/ratings",
		strings.NewReader(`{"hygiene":5,"discretion":5,"accessibility":5}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token(t, "u1", "a@b.c"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	got := decode[struct {
		AverageRating float64 `json:"average_rating"`
		RatingsCount  int     `json:"ratings_count"`
		Source        string  `json:"source"`
	}](t, resp)
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	// (4*3 + 5) / 4 = 4.25
	if got.AverageRating != 4.25 || got.RatingsCount != 4 || got.Source != "local" {
		t.Fatalf("unexpected aggregates: %+v", got)
	}
	if store.insertedRating == nil || store.insertedRating.UserID != "u1" {
		t.Fatalf("rating not stored: %+v", store.insertedRating)
	}
}

func TestSignIn_ReturnsSession(t *testing.T) {
	auth := &fakeAuth{token: "tok-123", identity: domain.Identity{ID: "u1", Email: "a@b.c"}}
	ts := newTestServer(t, &fakeStore{}, &fakeCache{}, auth)

	resp, err := http.Post(ts.URL+"/v1/auth/signin", "application/json",
		strings.NewReader(`{"email":"a@b.c","password":"pw"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	got := decode[struct {
		User        struct{ ID, Email string }
		AccessToken string `json:"access_token"`
	}](t, resp)
	if resp.StatusCode != 200 || got.AccessToken != "tok-123" || got.User.ID != "u1" {
		t.Fatalf("unexpected session: %d %+v", resp.StatusCode, got)
	}
}

func TestSignIn_MissingCredentials(t *testing.T) {
	ts := newTestServer(t, &fakeStore{}, &fakeCache{}, &fakeAuth{})

	resp, err := http.Post(ts.URL+"/v1/auth/signin", "application/json",
		strings.NewReader(`{"email":"a@b.c"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMyBridges_OnlyOwn(t *testing.T) {
	ts := newTestServer(t, &fakeStore{bridges: testBridges()}, &fakeCache{}, &fakeAuth{})

	req, _ := http.NewRequest("GET", ts.URL+"/v1/me/bridges", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "u2", "b@c.d"))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got := decode[listResponse](t, resp)
	if got.Count != 1 || got.Bridges[0].ID != "b2" {
		t.Fatalf("unexpected profile bridges: %+v", got)
	}
}
