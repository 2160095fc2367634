package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jzydn/jay-clips-archive/internal/db"
	"github.com/jzydn/jay-clips-archive/internal/models"
)

const clipColumns = `id, title, subtitle, game, duration, file_path, owner_id, upload_date, video_hash, is_private, views`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClip(row rowScanner) (models.Clip, error) {
	var clip models.Clip
	err := row.Scan(
		&clip.ID,
		&clip.Title,
		&clip.Subtitle,
		&clip.Game,
		&clip.Duration,
		&clip.FilePath,
		&clip.OwnerID,
		&clip.UploadDate,
		&clip.VideoHash,
		&clip.IsPrivate,
		&clip.Views,
	)
	clip.UploadDate = clip.UploadDate.UTC()
	return clip, err
}

// PostgresClipRepository provides PostgreSQL-backed persistence for clips.
// It also runs unchanged against CockroachDB.
type PostgresClipRepository struct {
	pool db.Pool
}

// NewPostgresClipRepository constructs a clip repository backed by PostgreSQL.
func NewPostgresClipRepository(pool db.Pool) *PostgresClipRepository {
	return &PostgresClipRepository{pool: pool}
}

// Insert stores a new clip row and returns its assigned id.
func (r *PostgresClipRepository) Insert(ctx context.Context, clip models.Clip) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var id int64
	err = conn.QueryRow(ctx, `
        INSERT INTO clips (title, subtitle, game, duration, file_path, owner_id, upload_date, video_hash, is_private, views)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `, clip.Title, clip.Subtitle, clip.Game, clip.Duration, clip.FilePath, clip.OwnerID,
		clip.UploadDate.UTC(), clip.VideoHash, clip.IsPrivate, clip.Views).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("insert clip: %w", err)
	}

	return id, nil
}

// FindByHash fetches a clip by its public share hash.
func (r *PostgresClipRepository) FindByHash(ctx context.Context, hash string) (models.Clip, error) {
	return r.findOne(ctx, `SELECT `+clipColumns+` FROM clips WHERE video_hash = $1`, hash)
}

// FindByID fetches a clip by its internal id.
func (r *PostgresClipRepository) FindByID(ctx context.Context, id int64) (models.Clip, error) {
	return r.findOne(ctx, `SELECT `+clipColumns+` FROM clips WHERE id = $1`, id)
}

func (r *PostgresClipRepository) findOne(ctx context.Context, query string, arg any) (models.Clip, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Clip{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	clip, err := scanClip(conn.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Clip{}, ErrNotFound
		}
		return models.Clip{}, fmt.Errorf("select clip: %w", err)
	}
	return clip, nil
}

// ListByOwner returns the owner's clips newest first. Private clips are
// included only when includePrivate is set.
func (r *PostgresClipRepository) ListByOwner(ctx context.Context, ownerID int64, includePrivate bool) ([]models.Clip, error) {
	query := `SELECT ` + clipColumns + ` FROM clips WHERE owner_id = $1`
	if !includePrivate {
		query += ` AND is_private = FALSE`
	}
	query += ` ORDER BY upload_date DESC, id DESC`

	return r.list(ctx, query, ownerID)
}

// ListPublicRecent returns at most limit public clips, newest first.
func (r *PostgresClipRepository) ListPublicRecent(ctx context.Context, limit int) ([]models.Clip, error) {
	return r.list(ctx, `
        SELECT `+clipColumns+`
        FROM clips
        WHERE is_private = FALSE
        ORDER BY upload_date DESC, id DESC
        LIMIT $1
    `, limit)
}

func (r *PostgresClipRepository) list(ctx context.Context, query string, args ...any) ([]models.Clip, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query clips: %w", err)
	}
	defer rows.Close()

	clips := []models.Clip{}
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, fmt.Errorf("scan clip: %w", err)
		}
		clips = append(clips, clip)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clips: %w", err)
	}

	return clips, nil
}

// UpdatePrivacy sets is_private and reports how many rows changed.
func (r *PostgresClipRepository) UpdatePrivacy(ctx context.Context, id int64, isPrivate bool) (int64, error) {
	return r.exec(ctx, "update clip privacy", `UPDATE clips SET is_private = $2 WHERE id = $1`, id, isPrivate)
}

// IncrementViews adds delta to the matching row's counter in one statement.
func (r *PostgresClipRepository) IncrementViews(ctx context.Context, match ViewMatch, delta int64) (int64, error) {
	if match.Hash != "" {
		return r.exec(ctx, "increment clip views", `UPDATE clips SET views = views + $2 WHERE video_hash = $1`, match.Hash, delta)
	}
	return r.exec(ctx, "increment clip views", `UPDATE clips SET views = views + $2 WHERE id = $1`, match.ID, delta)
}

func (r *PostgresClipRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByID removes the row and returns it so the caller can purge the blob.
func (r *PostgresClipRepository) DeleteByID(ctx context.Context, id int64) (models.Clip, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Clip{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	clip, err := scanClip(conn.QueryRow(ctx, `DELETE FROM clips WHERE id = $1 RETURNING `+clipColumns, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Clip{}, ErrNotFound
		}
		return models.Clip{}, fmt.Errorf("delete clip: %w", err)
	}
	return clip, nil
}

// FilePathExists reports whether any row references the stored path.
func (r *PostgresClipRepository) FilePathExists(ctx context.Context, filePath string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clips WHERE file_path = $1)`, filePath).Scan(&exists); err != nil {
		return false, fmt.Errorf("check clip file path: %w", err)
	}
	return exists, nil
}

var _ ClipRepository = (*PostgresClipRepository)(nil)
