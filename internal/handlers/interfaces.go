package handlers

import (
	"context"
	"net/http"

	"github.com/jzydn/jay-clips-archive/internal/clips"
	"github.com/jzydn/jay-clips-archive/internal/models"
	"github.com/jzydn/jay-clips-archive/internal/storage"
)

// ClipService captures the clip operations exposed over HTTP.
type ClipService interface {
	Upload(ctx context.Context, in clips.UploadInput) (models.Clip, error)
	GetByHash(ctx context.Context, hash string, privileged bool) (models.Clip, error)
	ListForOwner(ctx context.Context, ownerID int64, privileged bool) ([]models.Clip, error)
	ListRecentPublic(ctx context.Context, limit int) ([]models.Clip, error)
	SetPrivacy(ctx context.Context, id int64, isPrivate bool) error
	RecordView(ctx context.Context, idOrHash string) error
	DeleteClip(ctx context.Context, id int64) error
}

// BlobOpener resolves stored paths to seekable content.
type BlobOpener interface {
	Open(ctx context.Context, storagePath string) (*storage.Blob, error)
}

// PrivilegeResolver decides whether a request comes from the operator.
type PrivilegeResolver interface {
	IsPrivileged(r *http.Request) bool
}
