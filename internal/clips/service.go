package clips

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/jzydn/jay-clips-archive/internal/logging"
	"github.com/jzydn/jay-clips-archive/internal/models"
	"github.com/jzydn/jay-clips-archive/internal/repositories"
	"github.com/jzydn/jay-clips-archive/internal/storage"
)

const (
	defaultRecentLimit = 4
	// MaxRecentLimit caps the size of the recent public listing.
	MaxRecentLimit = 50

	insertAttempts = 3
)

// BlobStore persists clip file bytes.
type BlobStore interface {
	Save(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	Delete(ctx context.Context, storagePath string) error
	Walk(ctx context.Context, fn storage.WalkFunc) error
}

// Config tunes Service defaults.
type Config struct {
	DefaultOwnerID int64
	RecentLimit    int
}

// Service applies validation and the visibility policy on top of the
// repository and blob store.
type Service struct {
	repo    repositories.ClipRepository
	blobs   BlobStore
	cfg     Config
	NowFunc func() time.Time
	NewHash func() (string, error)
}

// NewService constructs a Service.
func NewService(repo repositories.ClipRepository, blobs BlobStore, cfg Config) *Service {
	if cfg.DefaultOwnerID <= 0 {
		cfg.DefaultOwnerID = 1
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = defaultRecentLimit
	}
	return &Service{
		repo:    repo,
		blobs:   blobs,
		cfg:     cfg,
		NowFunc: time.Now,
		NewHash: NewVideoHash,
	}
}

// UploadInput carries the metadata and file of a new clip.
type UploadInput struct {
	Title       string
	Subtitle    string
	Game        string
	Duration    string
	OwnerID     int64
	File        io.Reader
	Filename    string
	ContentType string
}

// Upload stores the file and records a new private clip.
func (s *Service) Upload(ctx context.Context, in UploadInput) (clip models.Clip, err error) {
	ctx, span := logging.StartSpan(ctx, "clips.upload")
	defer func() { span.End(err) }()

	title := strings.TrimSpace(in.Title)
	game := strings.TrimSpace(in.Game)
	if title == "" || game == "" {
		return models.Clip{}, fmt.Errorf("%w: title and game are required", ErrInvalidInput)
	}
	if in.File == nil || strings.TrimSpace(in.Filename) == "" {
		return models.Clip{}, fmt.Errorf("%w: video file is required", ErrInvalidInput)
	}
	if err := storage.ValidateMedia(in.Filename, in.ContentType); err != nil {
		return models.Clip{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	ownerID := in.OwnerID
	if ownerID <= 0 {
		ownerID = s.cfg.DefaultOwnerID
	}

	filePath, err := s.blobs.Save(ctx, in.Filename, in.ContentType, in.File)
	if err != nil {
		if errors.Is(err, storage.ErrUnsupportedMediaType) {
			return models.Clip{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return models.Clip{}, fmt.Errorf("store clip file: %w", err)
	}

	clip = models.Clip{
		Title:      title,
		Subtitle:   strings.TrimSpace(in.Subtitle),
		Game:       game,
		Duration:   strings.TrimSpace(in.Duration),
		FilePath:   filePath,
		OwnerID:    ownerID,
		UploadDate: s.NowFunc().UTC(),
		IsPrivate:  true,
	}

	for attempt := 1; ; attempt++ {
		clip.VideoHash, err = s.NewHash()
		if err != nil {
			break
		}

		clip.ID, err = s.repo.Insert(ctx, clip)
		if err == nil {
			return clip, nil
		}
		if !errors.Is(err, repositories.ErrConflict) || attempt == insertAttempts {
			break
		}
		logging.FromContext(ctx).Warn("video hash collision, regenerating", "attempt", attempt)
	}

	// The blob stays behind; the sweep command reclaims unreferenced files.
	logging.FromContext(ctx).Error("clip metadata insert failed after storing file",
		"file_path", filePath,
		"error", err,
	)
	return models.Clip{}, fmt.Errorf("insert clip: %w", err)
}

// GetByHash returns the clip for a share hash, enforcing visibility.
func (s *Service) GetByHash(ctx context.Context, hash string, privileged bool) (clip models.Clip, err error) {
	ctx, span := logging.StartSpan(ctx, "clips.get_by_hash")
	defer func() { span.End(err) }()

	hash = strings.TrimSpace(hash)
	if hash == "" {
		return models.Clip{}, ErrNotFound
	}

	clip, err = s.repo.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Clip{}, ErrNotFound
		}
		return models.Clip{}, fmt.Errorf("find clip by hash: %w", err)
	}
	if !clip.VisibleTo(privileged) {
		return models.Clip{}, ErrForbidden
	}
	return clip, nil
}

// ListForOwner returns an owner's clips newest first. Unprivileged callers
// only see public clips.
func (s *Service) ListForOwner(ctx context.Context, ownerID int64, privileged bool) (clips []models.Clip, err error) {
	ctx, span := logging.StartSpan(ctx, "clips.list_for_owner")
	defer func() { span.End(err) }()

	if ownerID <= 0 {
		return nil, fmt.Errorf("%w: owner id must be positive", ErrInvalidInput)
	}

	clips, err = s.repo.ListByOwner(ctx, ownerID, privileged)
	if err != nil {
		return nil, fmt.Errorf("list clips by owner: %w", err)
	}
	return clips, nil
}

// ListRecentPublic returns the newest public clips. A non-positive limit
// uses the configured default and large limits are clamped.
func (s *Service) ListRecentPublic(ctx context.Context, limit int) (clips []models.Clip, err error) {
	ctx, span := logging.StartSpan(ctx, "clips.list_recent_public")
	defer func() { span.End(err) }()

	if limit <= 0 {
		limit = s.cfg.RecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	clips, err = s.repo.ListPublicRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent clips: %w", err)
	}
	return clips, nil
}

// SetPrivacy updates a clip's visibility flag.
func (s *Service) SetPrivacy(ctx context.Context, id int64, isPrivate bool) (err error) {
	ctx, span := logging.StartSpan(ctx, "clips.set_privacy")
	defer func() { span.End(err) }()

	affected, err := s.repo.UpdatePrivacy(ctx, id, isPrivate)
	if err != nil {
		return fmt.Errorf("update clip privacy: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordView increments the view counter of the clip identified by
// idOrHash. Tokens containing a letter are hashes; others are numeric ids.
func (s *Service) RecordView(ctx context.Context, idOrHash string) (err error) {
	ctx, span := logging.StartSpan(ctx, "clips.record_view")
	defer func() { span.End(err) }()

	token := strings.TrimSpace(idOrHash)
	if token == "" {
		return fmt.Errorf("%w: clip identifier is required", ErrInvalidInput)
	}

	var match repositories.ViewMatch
	if containsLetter(token) {
		match.Hash = token
	} else {
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid clip id %q", ErrInvalidInput, token)
		}
		match.ID = id
	}

	affected, err := s.repo.IncrementViews(ctx, match, 1)
	if err != nil {
		return fmt.Errorf("increment clip views: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteClip removes the metadata row and then the blob. Blob removal is
// best effort; the row is authoritative.
func (s *Service) DeleteClip(ctx context.Context, id int64) (err error) {
	ctx, span := logging.StartSpan(ctx, "clips.delete")
	defer func() { span.End(err) }()

	removed, err := s.repo.DeleteByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete clip: %w", err)
	}

	if err := s.blobs.Delete(ctx, removed.FilePath); err != nil {
		logging.FromContext(ctx).Warn("remove clip file failed",
			"clip_id", removed.ID,
			"file_path", removed.FilePath,
			"error", err,
		)
	}
	return nil
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
