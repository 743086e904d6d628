// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"lebonpont/internal/app"
	"lebonpont/internal/domain"
	"lebonpont/internal/shared/geoloc"
)

// AuthSession is the auth surface the handlers need: the provider operations
// plus access to the mirrored token for login responses.
type AuthSession interface {
	domain.AuthProvider
	AccessToken() string
}

type Handlers struct {
	Listing *app.ListingService
	Submit  *app.SubmitService
	Auth    AuthSession
	Geo     *geoloc.Adapter
	Store   domain.BridgeStore
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Get("/v1/bridges", h.listBridges)
	s.mux.Get("/v1/bridges/{id}", h.getBridge)
	s.mux.Get("/v1/regions", h.listRegions)

	s.mux.Post("/v1/bridges", requireAuth(h.createBridge))
	s.mux.Patch("/v1/bridges/{id}", requireAuth(h.editBridge))
	s.mux.Post("/v1/bridges/{id}/comments", requireAuth(h.createComment))
	s.mux.Post("/v1/bridges/{id}/ratings", requireAuth(h.createRating))

	s.mux.Post("/v1/auth/signup", h.signUp)
	s.mux.Post("/v1/auth/signin", h.signIn)
	s.mux.Post("/v1/auth/signout", requireAuth(h.signOut))
	s.mux.Get("/v1/auth/me", requireAuth(h.me))

	s.mux.Get("/v1/me/bridges", requireAuth(h.myBridges))
	s.mux.Get("/v1/me/comments", requireAuth(h.myComments))
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain failures to problem responses. Remote-read failures
// that are not attributable to the caller surface as 502.
func writeError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		writeProblem(w, http.StatusBadRequest, "Invalid Input", verr.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, domain.ErrUnauthorized):
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "")
	case errors.Is(err, domain.ErrForbidden):
		writeProblem(w, http.StatusForbidden, "Forbidden", "")
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", "")
	default:
		log.Error().Err(err).Msg("upstream failure")
		writeProblem(w, http.StatusBadGateway, "Upstream Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeCachedJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag) // include ETag on 304
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// ---- Read endpoints ----

func (h *Handlers) listBridges(w http.ResponseWriter, r *http.Request) {
	all, err := h.Listing.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	out := app.Filter(all, q.Get("q"), q.Get("region"))

	if q.Get("sort") == "proximity" {
		ref, ok := coordParams(q.Get("lat"), q.Get("lng"))
		if !ok {
			// no usable client position; fall back to the configured one
			ref = h.Geo.Locate(r.Context())
		}
		out = app.SortByProximity(out, ref)
	}

	resp := struct {
		Bridges []bridgeJSON `json:"bridges"`
		Count   int          `json:"count"`
	}{Bridges: bridgesToJSON(out), Count: len(out)}
	writeCachedJSON(w, r, resp)
}

func (h *Handlers) getBridge(w http.ResponseWriter, r *http.Request) {
	b, err := h.Listing.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeCachedJSON(w, r, bridgeToJSON(b))
}

func (h *Handlers) listRegions(w http.ResponseWriter, r *http.Request) {
	all, err := h.Listing.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := struct {
		Regions []string `json:"regions"`
	}{Regions: app.Regions(all)}
	writeCachedJSON(w, r, resp)
}

// ---- Write endpoints ----

const maxUploadBytes = 32 << 20

func (h *Handlers) createBridge(w http.ResponseWriter, r *http.Request) {
	in, err := parseBridgeForm(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}

	b, err := h.Submit.SubmitBridge(r.Context(), identityFrom(r.Context()), in, nil)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Listing.Invalidate(r.Context())
	writeJSON(w, http.StatusCreated, bridgeToJSON(b))
}

func (h *Handlers) editBridge(w http.ResponseWriter, r *http.Request) {
	var in app.EditBridgeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Input", "malformed JSON body")
		return
	}
	b, err := h.Submit.EditBridge(r.Context(), identityFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Listing.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, bridgeToJSON(b))
}

func (h *Handlers) createComment(w http.ResponseWriter, r *http.Request) {
	bridgeID := chi.URLParam(r, "id")

	var content string
	var images []app.ImageUpload
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid Input", "malformed multipart body")
			return
		}
		content = r.FormValue("content")
		var err error
		images, err = formImages(r, "images")
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid Input", err.Error())
			return
		}
	} else {
		var body struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid Input", "malformed JSON body")
			return
		}
		content = body.Content
	}

	c, err := h.Submit.SubmitComment(r.Context(), identityFrom(r.Context()), bridgeID, content, images)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commentToJSON(c))
}

func (h *Handlers) createRating(w http.ResponseWriter, r *http.Request) {
	bridgeID := chi.URLParam(r, "id")

	var in struct {
		Hygiene       int `json:"hygiene"`
		Discretion    int `json:"discretion"`
		Accessibility int `json:"accessibility"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Input", "malformed JSON body")
		return
	}

	// current aggregates seed the optimistic local update
	b, err := h.Listing.Get(r.Context(), bridgeID)
	if err != nil {
		writeError(w, err)
		return
	}

	agg, err := h.Submit.SubmitRating(r.Context(), identityFrom(r.Context()), bridgeID,
		app.RatingInput{Hygiene: in.Hygiene, Discretion: in.Discretion, Accessibility: in.Accessibility},
		b.Aggregates)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Listing.Invalidate(r.Context())
	writeJSON(w, http.StatusOK, aggregatesToJSON(agg))
}

// ---- Auth endpoints ----

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func readCredentials(r *http.Request) (credentials, error) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		return c, errors.New("malformed JSON body")
	}
	if c.Email == "" || c.Password == "" {
		return c, errors.New("email and password are required")
	}
	return c, nil
}

func (h *Handlers) signUp(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	id, err := h.Auth.SignUp(r.Context(), c.Email, c.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse(id, h.Auth.AccessToken()))
}

func (h *Handlers) signIn(w http.ResponseWriter, r *http.Request) {
	c, err := readCredentials(r)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Input", err.Error())
		return
	}
	id, err := h.Auth.SignIn(r.Context(), c.Email, c.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse(id, h.Auth.AccessToken()))
}

func (h *Handlers) signOut(w http.ResponseWriter, r *http.Request) {
	if err := h.Auth.SignOut(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	id, err := h.Auth.CurrentUser(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, userJSON{ID: id.ID, Email: id.Email})
}

func (h *Handlers) myBridges(w http.ResponseWriter, r *http.Request) {
	who := identityFrom(r.Context())
	bs, err := h.Store.BridgesByCreator(r.Context(), who.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := struct {
		Bridges []bridgeJSON `json:"bridges"`
		Count   int          `json:"count"`
	}{Bridges: bridgesToJSON(bs), Count: len(bs)}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) myComments(w http.ResponseWriter, r *http.Request) {
	who := identityFrom(r.Context())
	cs, err := h.Store.CommentsByAuthor(r.Context(), who.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]commentJSON, 0, len(cs))
	for _, c := range cs {
		out = append(out, commentToJSON(c))
	}
	resp := struct {
		Comments []commentJSON `json:"comments"`
		Count    int           `json:"count"`
	}{Comments: out, Count: len(cs)}
	writeJSON(w, http.StatusOK, resp)
}

// ---- Form parsing ----

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/")
}

func parseBridgeForm(r *http.Request) (app.NewBridgeInput, error) {
	var in app.NewBridgeInput
	if !isMultipart(r) {
		var body struct {
			Name            string   `json:"name"`
			Address         string   `json:"address"`
			City            string   `json:"city"`
			Region          string   `json:"region"`
			Description     string   `json:"description"`
			Latitude        *float64 `json:"latitude"`
			Longitude       *float64 `json:"longitude"`
			RainProtection  bool     `json:"rain_protection"`
			NearbyToilets   bool     `json:"nearby_toilets"`
			DrinkingWater   bool     `json:"drinking_water"`
			Lighting        bool     `json:"lighting"`
			ToiletsDistance *int     `json:"toilets_distance"`
			WaterDistance   *int     `json:"water_distance"`
			SecurityLevel   string   `json:"security_level"`
			TrafficLevel    string   `json:"traffic_level"`
			NoiseLevel      string   `json:"noise_level"`
			ViewQuality     string   `json:"view_quality"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return in, errors.New("malformed JSON body")
		}
		in = app.NewBridgeInput{
			Name: body.Name, Address: body.Address, City: body.City,
			Region: body.Region, Description: body.Description,
			Lat: body.Latitude, Lng: body.Longitude,
			RainProtection: body.RainProtection, NearbyToilets: body.NearbyToilets,
			DrinkingWater: body.DrinkingWater, Lighting: body.Lighting,
			ToiletsDistance: body.ToiletsDistance, WaterDistance: body.WaterDistance,
			SecurityLevel: body.SecurityLevel, TrafficLevel: body.TrafficLevel,
			NoiseLevel: body.NoiseLevel, ViewQuality: body.ViewQuality,
		}
		return in, nil
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return in, errors.New("malformed multipart body")
	}
	in = app.NewBridgeInput{
		Name:            r.FormValue("name"),
		Address:         r.FormValue("address"),
		City:            r.FormValue("city"),
		Region:          r.FormValue("region"),
		Description:     r.FormValue("description"),
		RainProtection:  formBool(r, "rain_protection"),
		NearbyToilets:   formBool(r, "nearby_toilets"),
		DrinkingWater:   formBool(r, "drinking_water"),
		Lighting:        formBool(r, "lighting"),
		SecurityLevel:   r.FormValue("security_level"),
		TrafficLevel:    r.FormValue("traffic_level"),
		NoiseLevel:      r.FormValue("noise_level"),
		ViewQuality:     r.FormValue("view_quality"),
		Lat:             formFloat(r, "latitude"),
		Lng:             formFloat(r, "longitude"),
		ToiletsDistance: formInt(r, "toilets_distance"),
		WaterDistance:   formInt(r, "water_distance"),
	}
	images, err := formImages(r, "images")
	if err != nil {
		return in, err
	}
	in.Images = images
	return in, nil
}

func formBool(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.FormValue(name))
	return v
}

func formFloat(r *http.Request, name string) *float64 {
	s := r.FormValue(name)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func formInt(r *http.Request, name string) *int {
	s := r.FormValue(name)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}

func formImages(r *http.Request, field string) ([]app.ImageUpload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	var out []app.ImageUpload
	for _, fh := range r.MultipartForm.File[field] {
		img, err := readUpload(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

func readUpload(fh *multipart.FileHeader) (app.ImageUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return app.ImageUpload{}, errors.New("unreadable upload " + fh.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return app.ImageUpload{}, errors.New("unreadable upload " + fh.Filename)
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return app.ImageUpload{Filename: fh.Filename, ContentType: ct, Data: data}, nil
}

// ---- Wire shapes ----

func coordParams(lat, lng string) (domain.Coord, bool) {
	if lat == "" || lng == "" {
		return domain.Coord{}, false
	}
	la, err1 := strconv.ParseFloat(lat, 64)
	ln, err2 := strconv.ParseFloat(lng, 64)
	if err1 != nil || err2 != nil {
		return domain.Coord{}, false
	}
	return domain.Coord{Lat: la, Lng: ln}, true
}

type userJSON struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func sessionResponse(id domain.Identity, token string) any {
	return struct {
		User        userJSON `json:"user"`
		AccessToken string   `json:"access_token,omitempty"`
	}{User: userJSON{ID: id.ID, Email: id.Email}, AccessToken: token}
}

type bridgeJSON struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Address     *string `json:"address,omitempty"`
	City        *string `json:"city,omitempty"`
	Region      *string `json:"region,omitempty"`
	Description *string `json:"description,omitempty"`

	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`

	Images []string `json:"images,omitempty"`

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

	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`

	Ratings aggregatesJSON `json:"ratings"`

	Comments []commentJSON `json:"comments,omitempty"`
}

type aggregatesJSON struct {
	AverageRating        float64 `json:"average_rating"`
	AverageHygiene       float64 `json:"average_hygiene"`
	AverageDiscretion    float64 `json:"average_discretion"`
	AverageAccessibility float64 `json:"average_accessibility"`
	RatingsCount         int     `json:"ratings_count"`
	Source               string  `json:"source"`
}

type commentJSON struct {
	ID        string     `json:"id"`
	BridgeID  string     `json:"bridge_id"`
	UserID    string     `json:"user_id"`
	UserEmail string     `json:"user_email"`
	Content   string     `json:"content"`
	Images    []string   `json:"images,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func bridgeToJSON(b domain.Bridge) bridgeJSON {
	out := bridgeJSON{
		ID: b.ID, Name: b.Name,
		Address: b.Address, City: b.City, Region: b.Region, Description: b.Description,
		Latitude: b.Lat, Longitude: b.Lng,
		Images:         b.Images,
		RainProtection: b.RainProtection, NearbyToilets: b.NearbyToilets,
		DrinkingWater: b.DrinkingWater, Lighting: b.Lighting,
		ToiletsDistance: b.ToiletsDistance, WaterDistance: b.WaterDistance,
		SecurityLevel: string(b.SecurityLevel), TrafficLevel: string(b.TrafficLevel),
		NoiseLevel: string(b.NoiseLevel), ViewQuality: string(b.ViewQuality),
		CreatedBy: b.CreatedBy,
		Ratings:   aggregatesToJSON(b.Aggregates),
	}
	if !b.CreatedAt.IsZero() {
		t := b.CreatedAt
		out.CreatedAt = &t
	}
	for _, c := range b.Comments {
		out.Comments = append(out.Comments, commentToJSON(c))
	}
	return out
}

func bridgesToJSON(bs []domain.Bridge) []bridgeJSON {
	out := make([]bridgeJSON, 0, len(bs))
	for _, b := range bs {
		out = append(out, bridgeToJSON(b))
	}
	return out
}

func aggregatesToJSON(a domain.RatingAggregates) aggregatesJSON {
	return aggregatesJSON{
		AverageRating:        a.AverageRating,
		AverageHygiene:       a.AverageHygiene,
		AverageDiscretion:    a.AverageDiscretion,
		AverageAccessibility: a.AverageAccessibility,
		RatingsCount:         a.RatingsCount,
		Source:               string(a.Source),
	}
}

func commentToJSON(c domain.Comment) commentJSON {
	out := commentJSON{
		ID: c.ID, BridgeID: c.BridgeID, UserID: c.UserID,
		UserEmail: c.UserEmail, Content: c.Content, Images: c.Images,
	}
	if !c.CreatedAt.IsZero() {
		t := c.CreatedAt
		out.CreatedAt = &t
	}
	return out
}
