package repositories

import (
	"context"

	"github.com/jzydn/jay-clips-archive/internal/models"
)

// ViewMatch selects the clip whose view counter is incremented. Exactly one
// of ID or Hash is expected to be set; Hash wins when both are.
type ViewMatch struct {
	ID   int64
	Hash string
}

// ClipRepository is the data-access contract for clip metadata. Every method
// is atomic with respect to the underlying store and carries no policy.
type ClipRepository interface {
	Insert(ctx context.Context, clip models.Clip) (int64, error)
	FindByHash(ctx context.Context, hash string) (models.Clip, error)
	FindByID(ctx context.Context, id int64) (models.Clip, error)
	ListByOwner(ctx context.Context, ownerID int64, includePrivate bool) ([]models.Clip, error)
	ListPublicRecent(ctx context.Context, limit int) ([]models.Clip, error)
	UpdatePrivacy(ctx context.Context, id int64, isPrivate bool) (int64, error)
	IncrementViews(ctx context.Context, match ViewMatch, delta int64) (int64, error)
	DeleteByID(ctx context.Context, id int64) (models.Clip, error)
	FilePathExists(ctx context.Context, filePath string) (bool, error)
}
