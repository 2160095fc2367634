package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/jzydn/jay-clips-archive/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS clips (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    subtitle TEXT NOT NULL DEFAULT '',
    game TEXT NOT NULL,
    duration TEXT NOT NULL DEFAULT '',
    file_path TEXT NOT NULL,
    owner_id INTEGER NOT NULL DEFAULT 1,
    upload_date TIMESTAMP NOT NULL,
    video_hash TEXT NOT NULL UNIQUE,
    is_private BOOLEAN NOT NULL DEFAULT 1,
    views INTEGER NOT NULL DEFAULT 0 CHECK (views >= 0)
);
CREATE INDEX IF NOT EXISTS clips_owner_upload_idx ON clips (owner_id, upload_date DESC);
CREATE INDEX IF NOT EXISTS clips_public_upload_idx ON clips (is_private, upload_date DESC);
CREATE INDEX IF NOT EXISTS clips_file_path_idx ON clips (file_path);
`

// SQLiteClipRepository persists clips in a local SQLite database, for
// single-node deployments that do not run PostgreSQL.
type SQLiteClipRepository struct {
	db *sql.DB
}

// NewSQLiteClipRepository wraps conn and creates the clips table if needed.
func NewSQLiteClipRepository(ctx context.Context, conn *sql.DB) (*SQLiteClipRepository, error) {
	if conn == nil {
		return nil, errors.New("sqlite clip repository: nil db")
	}
	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("create clips schema: %w", err)
	}
	return &SQLiteClipRepository{db: conn}, nil
}

// Insert stores a new clip row and returns its assigned id.
func (r *SQLiteClipRepository) Insert(ctx context.Context, clip models.Clip) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
        INSERT INTO clips (title, subtitle, game, duration, file_path, owner_id, upload_date, video_hash, is_private, views)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, clip.Title, clip.Subtitle, clip.Game, clip.Duration, clip.FilePath, clip.OwnerID,
		clip.UploadDate.UTC(), clip.VideoHash, clip.IsPrivate, clip.Views)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("insert clip: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted clip id: %w", err)
	}
	return id, nil
}

// FindByHash fetches a clip by its public share hash.
func (r *SQLiteClipRepository) FindByHash(ctx context.Context, hash string) (models.Clip, error) {
	return r.findOne(ctx, `SELECT `+clipColumns+` FROM clips WHERE video_hash = ?`, hash)
}

// FindByID fetches a clip by its internal id.
func (r *SQLiteClipRepository) FindByID(ctx context.Context, id int64) (models.Clip, error) {
	return r.findOne(ctx, `SELECT `+clipColumns+` FROM clips WHERE id = ?`, id)
}

func (r *SQLiteClipRepository) findOne(ctx context.Context, query string, arg any) (models.Clip, error) {
	clip, err := scanClip(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Clip{}, ErrNotFound
		}
		return models.Clip{}, fmt.Errorf("select clip: %w", err)
	}
	return clip, nil
}

// ListByOwner returns the owner's clips newest first.
func (r *SQLiteClipRepository) ListByOwner(ctx context.Context, ownerID int64, includePrivate bool) ([]models.Clip, error) {
	query := `SELECT ` + clipColumns + ` FROM clips WHERE owner_id = ?`
	if !includePrivate {
		query += ` AND is_private = 0`
	}
	query += ` ORDER BY upload_date DESC, id DESC`

	return r.list(ctx, query, ownerID)
}

// ListPublicRecent returns at most limit public clips, newest first.
func (r *SQLiteClipRepository) ListPublicRecent(ctx context.Context, limit int) ([]models.Clip, error) {
	return r.list(ctx, `
        SELECT `+clipColumns+`
        FROM clips
        WHERE is_private = 0
        ORDER BY upload_date DESC, id DESC
        LIMIT ?
    `, limit)
}

func (r *SQLiteClipRepository) list(ctx context.Context, query string, args ...any) ([]models.Clip, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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
func (r *SQLiteClipRepository) UpdatePrivacy(ctx context.Context, id int64, isPrivate bool) (int64, error) {
	return r.exec(ctx, "update clip privacy", `UPDATE clips SET is_private = ? WHERE id = ?`, isPrivate, id)
}

// IncrementViews adds delta to the matching row's counter in one statement.
func (r *SQLiteClipRepository) IncrementViews(ctx context.Context, match ViewMatch, delta int64) (int64, error) {
	if match.Hash != "" {
		return r.exec(ctx, "increment clip views", `UPDATE clips SET views = views + ? WHERE video_hash = ?`, delta, match.Hash)
	}
	return r.exec(ctx, "increment clip views", `UPDATE clips SET views = views + ? WHERE id = ?`, delta, match.ID)
}

func (r *SQLiteClipRepository) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n, nil
}

// DeleteByID removes the row and returns it so the caller can purge the blob.
func (r *SQLiteClipRepository) DeleteByID(ctx context.Context, id int64) (models.Clip, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Clip{}, fmt.Errorf("begin delete clip: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// upload_date is decoded through its declared column type, so read the
	// row with a plain SELECT before deleting it.
	clip, err := scanClip(tx.QueryRowContext(ctx, `SELECT `+clipColumns+` FROM clips WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Clip{}, ErrNotFound
		}
		return models.Clip{}, fmt.Errorf("select clip for delete: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM clips WHERE id = ?`, id); err != nil {
		return models.Clip{}, fmt.Errorf("delete clip: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Clip{}, fmt.Errorf("commit delete clip: %w", err)
	}
	return clip, nil
}

// FilePathExists reports whether any row references the stored path.
func (r *SQLiteClipRepository) FilePathExists(ctx context.Context, filePath string) (bool, error) {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM clips WHERE file_path = ?)`, filePath).Scan(&exists); err != nil {
		return false, fmt.Errorf("check clip file path: %w", err)
	}
	return exists, nil
}

var _ ClipRepository = (*SQLiteClipRepository)(nil)
