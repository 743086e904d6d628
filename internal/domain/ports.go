package domain

import "context"

// BridgeStore is the record surface of the remote data service.
type BridgeStore interface {
	ListBridges(ctx context.Context) ([]Bridge, error)
	// GetBridge returns one bridge with its comments embedded.
	GetBridge(ctx context.Context, id string) (Bridge, error)
	InsertBridge(ctx context.Context, b Bridge) (Bridge, error)
	UpdateBridge(ctx context.Context, id string, patch BridgePatch) (Bridge, error)
	InsertComment(ctx context.Context, c Comment) (Comment, error)
	InsertRating(ctx context.Context, r Rating) (Rating, error)

	// Profile reads.
	BridgesByCreator(ctx context.Context, userID string) ([]Bridge, error)
	CommentsByAuthor(ctx context.Context, userID string) ([]Comment, error)
}

// BridgePatch is a partial update; nil fields are left untouched.
type BridgePatch struct {
	Name        *string
	Address     *string
	City        *string
	Region      *string
	Description *string
	Images      []string
}

// ObjectStore is the object-storage surface of the remote data service.
type ObjectStore interface {
	// Upload stores blob under a caller-chosen bucket-relative path and
	// returns the stored path.
	Upload(ctx context.Context, path string, blob []byte, contentType string) (string, error)
	// PublicURL derives the public URL for a stored path. Pure, no network.
	PublicURL(path string) string
}

// AuthProvider is the auth surface of the remote data service. The client
// only mirrors session state; credentials never persist locally.
type AuthProvider interface {
	SignUp(ctx context.Context, email, password string) (Identity, error)
	SignIn(ctx context.Context, email, password string) (Identity, error)
	SignOut(ctx context.Context) error
	CurrentUser(ctx context.Context) (Identity, error)
	// Subscribe registers the single auth-event consumer. The returned
	// release func must be called on teardown.
	Subscribe() (<-chan AuthEvent, func())
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
