package repositories

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jzydn/jay-clips-archive/internal/db"
	"github.com/jzydn/jay-clips-archive/internal/models"
)

func setupSQLiteRepo(t *testing.T) *SQLiteClipRepository {
	t.Helper()
	ctx := context.Background()

	conn, err := db.OpenSQLite(ctx, filepath.Join(t.TempDir(), "clips.db"))
	require.NoError(t, err, "open sqlite")
	t.Cleanup(func() {
		require.NoError(t, conn.Close())
	})

	repo, err := NewSQLiteClipRepository(ctx, conn)
	require.NoError(t, err, "create repository")
	return repo
}

func newTestClip(hash string, owner int64, uploaded time.Time, private bool) models.Clip {
	return models.Clip{
		Title:      "Clip " + hash,
		Game:       "Valorant",
		Duration:   "00:30",
		FilePath:   "videos/" + hash + ".mp4",
		OwnerID:    owner,
		UploadDate: uploaded,
		VideoHash:  hash,
		IsPrivate:  private,
	}
}

func TestSQLiteInsertAndFind(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	uploaded := time.Date(2024, time.March, 3, 10, 0, 0, 0, time.UTC)
	clip := newTestClip("abc123def456ghi789jkl0mn", 1, uploaded, true)
	clip.Subtitle = "B site"

	id, err := repo.Insert(ctx, clip)
	require.NoError(t, err)
	require.Positive(t, id)

	byHash, err := repo.FindByHash(ctx, clip.VideoHash)
	require.NoError(t, err)
	require.Equal(t, id, byHash.ID)
	require.Equal(t, "B site", byHash.Subtitle)
	require.True(t, byHash.IsPrivate)
	require.Zero(t, byHash.Views)
	require.True(t, uploaded.Equal(byHash.UploadDate), "upload date round trip: %v", byHash.UploadDate)

	byID, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, byHash, byID)

	_, err = repo.FindByHash(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.FindByID(ctx, id+100)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteInsertDuplicateHash(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	clip := newTestClip("duplicatehash0000000000a", 1, time.Now().UTC(), true)
	_, err := repo.Insert(ctx, clip)
	require.NoError(t, err)

	_, err = repo.Insert(ctx, clip)
	require.ErrorIs(t, err, ErrConflict)
}

func TestSQLiteListing(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	base := time.Date(2024, time.April, 1, 12, 0, 0, 0, time.UTC)
	fixtures := []models.Clip{
		newTestClip("owner1oldpublic000000000", 1, base, false),
		newTestClip("owner1newprivate00000000", 1, base.Add(2*time.Hour), true),
		newTestClip("owner1midpublic000000000", 1, base.Add(time.Hour), false),
		newTestClip("owner2public000000000000", 2, base.Add(3*time.Hour), false),
	}
	for _, clip := range fixtures {
		_, err := repo.Insert(ctx, clip)
		require.NoError(t, err)
	}

	all, err := repo.ListByOwner(ctx, 1, true)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "owner1newprivate00000000", all[0].VideoHash)
	require.Equal(t, "owner1midpublic000000000", all[1].VideoHash)
	require.Equal(t, "owner1oldpublic000000000", all[2].VideoHash)

	public, err := repo.ListByOwner(ctx, 1, false)
	require.NoError(t, err)
	require.Len(t, public, 2)
	for _, clip := range public {
		require.False(t, clip.IsPrivate)
	}

	none, err := repo.ListByOwner(ctx, 99, true)
	require.NoError(t, err)
	require.NotNil(t, none)
	require.Empty(t, none)

	recent, err := repo.ListPublicRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "owner2public000000000000", recent[0].VideoHash)
	require.Equal(t, "owner1midpublic000000000", recent[1].VideoHash)
}

func TestSQLiteUpdatePrivacy(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	id, err := repo.Insert(ctx, newTestClip("privacytoggle00000000000", 1, time.Now().UTC(), true))
	require.NoError(t, err)

	n, err := repo.UpdatePrivacy(ctx, id, false)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	clip, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.False(t, clip.IsPrivate)

	n, err = repo.UpdatePrivacy(ctx, id+1, false)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSQLiteIncrementViewsConcurrently(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	clip := newTestClip("concurrentviews000000000", 1, time.Now().UTC(), false)
	id, err := repo.Insert(ctx, clip)
	require.NoError(t, err)

	const workers = 25
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			match := ViewMatch{ID: id}
			if i%2 == 0 {
				match = ViewMatch{Hash: clip.VideoHash}
			}
			n, err := repo.IncrementViews(ctx, match, 1)
			if err == nil && n != 1 {
				err = fmt.Errorf("expected 1 affected row, got %d", n)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.EqualValues(t, workers, stored.Views)

	n, err := repo.IncrementViews(ctx, ViewMatch{Hash: "unknown"}, 1)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSQLiteDeleteByID(t *testing.T) {
	repo := setupSQLiteRepo(t)
	ctx := context.Background()

	clip := newTestClip("deletemeplease0000000000", 1, time.Now().UTC(), true)
	id, err := repo.Insert(ctx, clip)
	require.NoError(t, err)

	exists, err := repo.FilePathExists(ctx, clip.FilePath)
	require.NoError(t, err)
	require.True(t, exists)

	removed, err := repo.DeleteByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, clip.FilePath, removed.FilePath)

	_, err = repo.FindByID(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = repo.DeleteByID(ctx, id)
	require.ErrorIs(t, err, ErrNotFound)

	exists, err = repo.FilePathExists(ctx, clip.FilePath)
	require.NoError(t, err)
	require.False(t, exists)
}
