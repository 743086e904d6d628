package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"lebonpont/internal/domain"
)

// SubmissionState tracks one submission through its lifecycle. No state is
// persisted; an abandoned submission simply disappears.
type SubmissionState string

const (
	StateIdle       SubmissionState = "idle"
	StateValidating SubmissionState = "validating"
	StateUploading  SubmissionState = "uploading"
	StateInserting  SubmissionState = "inserting"
	StateSucceeded  SubmissionState = "succeeded"
	StateFailed     SubmissionState = "failed"
)

// ProgressFunc receives a monotonically increasing percentage for the
// submission in flight. Reset to 0 on failure.
type ProgressFunc func(pct int)

// Progress carries the moving parts of one submission.
type Progress struct {
	ID     string
	State  SubmissionState
	report ProgressFunc
}

func newProgress(report ProgressFunc) *Progress {
	if report == nil {
		report = func(int) {}
	}
	return &Progress{ID: uuid.NewString(), State: StateIdle, report: report}
}

func (p *Progress) to(s SubmissionState) { p.State = s }

// ImageUpload is one image selected for a submission.
type ImageUpload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Thumbnailer derives a reduced variant of an uploaded image. Optional;
// failures are logged and skipped, never fatal.
type Thumbnailer interface {
	Thumbnail(data []byte, contentType string) ([]byte, error)
}

// SubmitService runs the create flows for bridges, comments and ratings:
// client-side validation, strictly sequential image upload, record insert,
// optimistic local aggregate update.
type SubmitService struct {
	store    domain.BridgeStore
	objects  domain.ObjectStore
	thumbs   Thumbnailer
	validate *validator.Validate
	now      func() time.Time
}

func NewSubmitService(store domain.BridgeStore, objects domain.ObjectStore, thumbs Thumbnailer) *SubmitService {
	return &SubmitService{
		store:    store,
		objects:  objects,
		thumbs:   thumbs,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// NewBridgeInput is the bridge creation form. Name, city and a map-selected
// coordinate are required; everything else has defaults.
type NewBridgeInput struct {
	Name        string `validate:"required"`
	Address     string
	City        string `validate:"required"`
	Region      string
	Description string

	Lat *float64 `validate:"required"`
	Lng *float64 `validate:"required"`

	RainProtection bool
	NearbyToilets  bool
	DrinkingWater  bool
	Lighting       bool

	ToiletsDistance *int `validate:"omitempty,gte=1"`
	WaterDistance   *int `validate:"omitempty,gte=1"`

	SecurityLevel string `validate:"omitempty,oneof=low medium high"`
	TrafficLevel  string `validate:"omitempty,oneof=low medium high"`
	NoiseLevel    string `validate:"omitempty,oneof=low medium high"`
	ViewQuality   string `validate:"omitempty,oneof=poor average good"`

	Images []ImageUpload
}

// SubmitBridge validates input, uploads images sequentially, inserts the
// record and returns it. Progress runs 10..50 through the upload phase and
// 60/80/100 through the insert phase; on any failure it resets to 0 and the
// error is surfaced as a single generic notification upstream. Uploads that
// completed before a failure are not rolled back.
func (s *SubmitService) SubmitBridge(ctx context.Context, who domain.Identity, in NewBridgeInput, report ProgressFunc) (domain.Bridge, error) {
	p := newProgress(report)
	p.to(StateValidating)

	if who.ID == "" {
		return domain.Bridge{}, domain.ErrUnauthorized
	}
	if err := s.validate.Struct(in); err != nil {
		p.to(StateIdle)
		return domain.Bridge{}, invalidFrom(err)
	}

	p.to(StateUploading)
	p.report(10)

	urls, err := s.uploadAll(ctx, "bridges", in.Images, p)
	if err != nil {
		p.to(StateFailed)
		p.report(0)
		return domain.Bridge{}, err
	}

	p.to(StateInserting)
	p.report(60)

	b := domain.Bridge{
		Name:            in.Name,
		Address:         optStr(in.Address),
		City:            optStr(in.City),
		Region:          optStr(in.Region),
		Description:     optStr(in.Description),
		Lat:             in.Lat,
		Lng:             in.Lng,
		Images:          urls,
		RainProtection:  in.RainProtection,
		NearbyToilets:   in.NearbyToilets,
		DrinkingWater:   in.DrinkingWater,
		Lighting:        in.Lighting,
		ToiletsDistance: in.ToiletsDistance,
		WaterDistance:   in.WaterDistance,
		SecurityLevel:   levelOr(in.SecurityLevel, domain.LevelMedium),
		TrafficLevel:    levelOr(in.TrafficLevel, domain.LevelMedium),
		NoiseLevel:      levelOr(in.NoiseLevel, domain.LevelMedium),
		ViewQuality:     viewOr(in.ViewQuality, domain.ViewAverage),
		CreatedBy:       who.ID,
		CreatedAt:       s.now().UTC(),
		Aggregates:      domain.RatingAggregates{Source: domain.AggregateServer},
	}
	p.report(80)

	created, err := s.store.InsertBridge(ctx, b)
	if err != nil {
		p.to(StateFailed)
		p.report(0)
		return domain.Bridge{}, err
	}

	p.to(StateSucceeded)
	p.report(100)
	return created, nil
}

// SubmitComment requires an authenticated identity and a non-empty trimmed
// body; both are checked before any network call. The inserted comment is
// returned for local append; callers do not refetch the bridge.
func (s *SubmitService) SubmitComment(ctx context.Context, who domain.Identity, bridgeID, content string, images []ImageUpload) (domain.Comment, error) {
	if who.ID == "" {
		return domain.Comment{}, domain.ErrUnauthorized
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.Comment{}, domain.Invalid("content", "comment must not be empty")
	}

	prefix := path.Join(who.ID, bridgeID)
	urls, err := s.uploadAll(ctx, prefix, images, newProgress(nil))
	if err != nil {
		return domain.Comment{}, err
	}

	return s.store.InsertComment(ctx, domain.Comment{
		BridgeID:  bridgeID,
		UserID:    who.ID,
		UserEmail: who.Email,
		Content:   content,
		Images:    urls,
		CreatedAt: s.now().UTC(),
	})
}

// EditBridgeInput is a partial update of a bridge's descriptive fields.
// Nil fields are left untouched.
type EditBridgeInput struct {
	Name        *string `validate:"omitempty,min=1"`
	Address     *string
	City        *string `validate:"omitempty,min=1"`
	Region      *string
	Description *string
}

// EditBridge applies a partial update. Only the creator may edit a record.
func (s *SubmitService) EditBridge(ctx context.Context, who domain.Identity, id string, in EditBridgeInput) (domain.Bridge, error) {
	if who.ID == "" {
		return domain.Bridge{}, domain.ErrUnauthorized
	}
	if err := s.validate.Struct(in); err != nil {
		return domain.Bridge{}, invalidFrom(err)
	}
	current, err := s.store.GetBridge(ctx, id)
	if err != nil {
		return domain.Bridge{}, err
	}
	if current.CreatedBy != who.ID {
		return domain.Bridge{}, domain.ErrForbidden
	}
	return s.store.UpdateBridge(ctx, id, domain.BridgePatch{
		Name:        in.Name,
		Address:     in.Address,
		City:        in.City,
		Region:      in.Region,
		Description: in.Description,
	})
}

// RatingInput carries the three sub-scores; zero means "not set".
type RatingInput struct {
	Hygiene       int `validate:"gte=1,lte=5"`
	Discretion    int `validate:"gte=1,lte=5"`
	Accessibility int `validate:"gte=1,lte=5"`
}

// Complete reports whether every sub-score has been set. The submit action
// stays disabled until it returns true.
func (in RatingInput) Complete() bool {
	return in.Hygiene != 0 && in.Discretion != 0 && in.Accessibility != 0
}

// SubmitRating inserts the rating and returns the optimistically updated
// aggregates (running mean, tagged AggregateLocal). The server value is not
// reconciled.
func (s *SubmitService) SubmitRating(ctx context.Context, who domain.Identity, bridgeID string, in RatingInput, current domain.RatingAggregates) (domain.RatingAggregates, error) {
	if who.ID == "" {
		return current, domain.ErrUnauthorized
	}
	if err := s.validate.Struct(in); err != nil {
		return current, invalidFrom(err)
	}

	r := domain.Rating{
		BridgeID:      bridgeID,
		UserID:        who.ID,
		Hygiene:       in.Hygiene,
		Discretion:    in.Discretion,
		Accessibility: in.Accessibility,
		CreatedAt:     s.now().UTC(),
	}
	if _, err := s.store.InsertRating(ctx, r); err != nil {
		return current, err
	}
	return current.Apply(r), nil
}

// uploadAll stores every image sequentially, never concurrently, so the
// reported percentage is monotonic and deterministic. Paths are namespaced
// by prefix plus upload timestamp and original filename. Completed uploads
// survive a later failure (orphaned objects are accepted).
func (s *SubmitService) uploadAll(ctx context.Context, prefix string, images []ImageUpload, p *Progress) ([]string, error) {
	if len(images) == 0 {
		return nil, nil
	}
	urls := make([]string, 0, len(images))
	for i, img := range images {
		key := path.Join(prefix, fmt.Sprintf("%d_%s", s.now().UnixMilli(), img.Filename))
		stored, err := s.objects.Upload(ctx, key, img.Data, img.ContentType)
		if err != nil {
			return nil, err
		}
		urls = append(urls, s.objects.PublicURL(stored))

		if s.thumbs != nil {
			if tb, terr := s.thumbs.Thumbnail(img.Data, img.ContentType); terr != nil {
				log.Warn().Err(terr).Str("path", key).Msg("thumbnail derivation failed")
			} else if _, terr := s.objects.Upload(ctx, path.Join("thumbs", key), tb, img.ContentType); terr != nil {
				log.Warn().Err(terr).Str("path", key).Msg("thumbnail upload failed")
			}
		}

		p.report(10 + ((i+1)*40)/len(images))
	}
	return urls, nil
}

func invalidFrom(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return domain.Invalid(strings.ToLower(f.Field()), "failed "+f.Tag()+" check")
	}
	return domain.Invalid("", err.Error())
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func levelOr(s string, def domain.Level) domain.Level {
	if s == "" {
		return def
	}
	return domain.Level(s)
}

func viewOr(s string, def domain.ViewQuality) domain.ViewQuality {
	if s == "" {
		return def
	}
	return domain.ViewQuality(s)
}
