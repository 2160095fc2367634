package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jzydn/jay-clips-archive/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		// SQLite tests in this package still run without a cockroach binary.
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(m.Run())
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresClipRepository_InsertFindAndConflict(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresClipRepository(testPool)

	uploaded := time.Now().UTC().Truncate(time.Millisecond)
	clip := newTestClip("pgclipinsert000000000000", 7, uploaded, true)

	id, err := repo.Insert(ctx, clip)
	if err != nil {
		t.Fatalf("insert clip: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected positive id, got %d", id)
	}

	if _, err := repo.Insert(ctx, clip); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict inserting duplicate hash, got %v", err)
	}

	fetched, err := repo.FindByHash(ctx, clip.VideoHash)
	if err != nil {
		t.Fatalf("find by hash: %v", err)
	}
	if fetched.ID != id || fetched.OwnerID != 7 || !fetched.IsPrivate || fetched.Views != 0 {
		t.Fatalf("unexpected clip fetched: %+v", fetched)
	}
	if !timesClose(fetched.UploadDate, uploaded, time.Millisecond) {
		t.Fatalf("expected upload date %v, got %v", uploaded, fetched.UploadDate)
	}

	if _, err := repo.FindByID(ctx, id+1000); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestPostgresClipRepository_ListingAndPrivacy(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresClipRepository(testPool)

	base := time.Now().UTC().Add(-time.Hour)
	older := newTestClip("pgolderpublic00000000000", 1, base, false)
	newer := newTestClip("pgnewerprivate0000000000", 1, base.Add(10*time.Minute), true)
	other := newTestClip("pgotherowner000000000000", 2, base.Add(20*time.Minute), false)

	ids := map[string]int64{}
	for _, clip := range []models.Clip{older, newer, other} {
		id, err := repo.Insert(ctx, clip)
		if err != nil {
			t.Fatalf("insert %s: %v", clip.VideoHash, err)
		}
		ids[clip.VideoHash] = id
	}

	owned, err := repo.ListByOwner(ctx, 1, true)
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(owned) != 2 || owned[0].VideoHash != newer.VideoHash || owned[1].VideoHash != older.VideoHash {
		t.Fatalf("unexpected owner listing: %+v", owned)
	}

	public, err := repo.ListByOwner(ctx, 1, false)
	if err != nil {
		t.Fatalf("list public by owner: %v", err)
	}
	if len(public) != 1 || public[0].VideoHash != older.VideoHash {
		t.Fatalf("expected only the public clip, got %+v", public)
	}

	n, err := repo.UpdatePrivacy(ctx, ids[newer.VideoHash], false)
	if err != nil || n != 1 {
		t.Fatalf("update privacy: n=%d err=%v", n, err)
	}

	recent, err := repo.ListPublicRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 || recent[0].VideoHash != other.VideoHash || recent[1].VideoHash != newer.VideoHash {
		t.Fatalf("unexpected recent listing: %+v", recent)
	}

	if n, err := repo.UpdatePrivacy(ctx, ids[other.VideoHash]+1000, true); err != nil || n != 0 {
		t.Fatalf("expected no rows for unknown id: n=%d err=%v", n, err)
	}
}

func TestPostgresClipRepository_IncrementAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresClipRepository(testPool)
	clip := newTestClip("pgviewcounter00000000000", 1, time.Now().UTC(), false)
	id, err := repo.Insert(ctx, clip)
	if err != nil {
		t.Fatalf("insert clip: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			match := ViewMatch{ID: id}
			if i%2 == 0 {
				match = ViewMatch{Hash: clip.VideoHash}
			}
			if _, err := repo.IncrementViews(ctx, match, 1); err != nil {
				t.Errorf("increment views: %v", err)
			}
		}(i)
	}
	wg.Wait()

	stored, err := repo.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("find clip: %v", err)
	}
	if stored.Views != workers {
		t.Fatalf("expected %d views, got %d", workers, stored.Views)
	}

	removed, err := repo.DeleteByID(ctx, id)
	if err != nil {
		t.Fatalf("delete clip: %v", err)
	}
	if removed.FilePath != clip.FilePath {
		t.Fatalf("expected deleted row file path %q, got %q", clip.FilePath, removed.FilePath)
	}

	if exists, err := repo.FilePathExists(ctx, clip.FilePath); err != nil || exists {
		t.Fatalf("expected file path to be unreferenced: exists=%v err=%v", exists, err)
	}

	if _, err := repo.DeleteByID(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting twice, got %v", err)
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	if testPool == nil {
		t.Skip("cockroach test server unavailable")
	}

	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE clips"); err != nil {
		t.Fatalf("truncate clips: %v", err)
	}
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
