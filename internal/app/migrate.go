package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/jzydn/jay-clips-archive/internal/config"
	"github.com/jzydn/jay-clips-archive/internal/db"
	"github.com/jzydn/jay-clips-archive/internal/repositories"
)

const (
	migrationMaxRetries  = 5
	migrationBaseBackoff = 100 * time.Millisecond
	migrationMaxBackoff  = 3 * time.Second
)

var retryablePgErrorCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|status]",
		Short:     "apply or list database migrations",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "up"
			if len(args) > 0 {
				command = args[0]
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runMigrations(cmd.Context(), cmd.OutOrStdout(), cfg, command)
		},
	}
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <name>",
		Short: "load a seed file (e.g. dev)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cmd.OutOrStdout(), cfg, args[0])
		},
	}
}

func runMigrations(ctx context.Context, out io.Writer, cfg config.Config, command string) error {
	switch command {
	case "up", "status", "":
	case "down":
		return errors.New("down migrations are not supported")
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}

	if cfg.DatabaseDriver == config.DriverSQLite {
		return migrateSQLite(ctx, out, cfg, command)
	}

	migrationDir, err := absDir(cfg.MigrationDir)
	if err != nil {
		return err
	}
	migrations, err := listMigrations(migrationDir)
	if err != nil {
		return err
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return err
	}

	if command == "status" {
		for _, name := range migrations {
			if _, ok := applied[name]; ok {
				fmt.Fprintf(out, "[x] %s\n", name)
			} else {
				fmt.Fprintf(out, "[ ] %s\n", name)
			}
		}
		return nil
	}

	if len(migrations) == 0 {
		fmt.Fprintln(out, "no migrations to apply")
		return nil
	}

	for _, name := range migrations {
		if _, ok := applied[name]; ok {
			continue
		}

		contents, err := os.ReadFile(filepath.Join(migrationDir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if err := applyMigrationWithRetry(ctx, out, conn, name, string(contents)); err != nil {
			return err
		}

		fmt.Fprintf(out, "applied migration %s\n", name)
	}
	return nil
}

// migrateSQLite has no versioned migrations; the repository creates its
// schema idempotently on open.
func migrateSQLite(ctx context.Context, out io.Writer, cfg config.Config, command string) error {
	conn, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if command == "status" {
		var count int
		err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'clips'`).Scan(&count)
		if err != nil {
			return fmt.Errorf("inspect sqlite schema: %w", err)
		}
		mark := " "
		if count > 0 {
			mark = "x"
		}
		fmt.Fprintf(out, "[%s] sqlite clips schema\n", mark)
		return nil
	}

	if _, err := repositories.NewSQLiteClipRepository(ctx, conn); err != nil {
		return err
	}
	fmt.Fprintln(out, "sqlite clips schema is up to date")
	return nil
}

func runSeed(ctx context.Context, out io.Writer, cfg config.Config, name string) error {
	seedDir, err := absDir(cfg.SeedDir)
	if err != nil {
		return err
	}

	seedName := seedFileName(seedDir, name, cfg.DatabaseDriver)
	contents, err := os.ReadFile(filepath.Join(seedDir, seedName))
	if err != nil {
		return fmt.Errorf("read seed %s: %w", seedName, err)
	}

	if cfg.DatabaseDriver == config.DriverSQLite {
		conn, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer conn.Close()

		if _, err := repositories.NewSQLiteClipRepository(ctx, conn); err != nil {
			return err
		}
		if _, err := conn.ExecContext(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply seed %s: %w", seedName, err)
		}
	} else {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		conn, err := pool.Acquire(ctx)
		if err != nil {
			return fmt.Errorf("acquire connection: %w", err)
		}
		defer conn.Release()

		if _, err := conn.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply seed %s: %w", seedName, err)
		}
	}

	fmt.Fprintf(out, "applied seed %s\n", seedName)

	return seedBlobs(ctx, out, cfg, filepath.Join(seedDir, seedBaseName(name)+"_blobs"))
}

// seedBlobs uploads every file under dir to the blob store at the same
// relative path, so seeded rows reference blobs that exist. A missing dir is
// not an error.
func seedBlobs(ctx context.Context, out io.Writer, cfg config.Config, dir string) error {
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil
	}

	store, err := openBlobStore(ctx, cfg)
	if err != nil {
		return err
	}

	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		storagePath := filepath.ToSlash(rel)

		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("open seed file %s: %w", storagePath, err)
		}
		defer f.Close()

		if err := store.Put(ctx, storagePath, f); err != nil {
			return fmt.Errorf("store seed file %s: %w", storagePath, err)
		}
		fmt.Fprintf(out, "stored seed file %s\n", storagePath)
		return nil
	})
}

// seedBaseName strips file suffixes so "dev", "dev_seed.sql" and
// "dev_seed.sqlite.sql" all name the "dev" seed.
func seedBaseName(name string) string {
	name = strings.TrimSuffix(name, ".sql")
	name = strings.TrimSuffix(name, ".sqlite")
	return strings.TrimSuffix(name, "_seed")
}

// seedFileName resolves a short seed name to a file. SQLite prefers a
// dialect-specific <name>_seed.sqlite.sql when one exists.
func seedFileName(seedDir, name, driver string) string {
	if strings.HasSuffix(name, ".sql") {
		return name
	}
	if driver == config.DriverSQLite {
		candidate := fmt.Sprintf("%s_seed.sqlite.sql", name)
		if _, err := os.Stat(filepath.Join(seedDir, candidate)); err == nil {
			return candidate
		}
	}
	return fmt.Sprintf("%s_seed.sql", name)
}

func absDir(dir string) (string, error) {
	if filepath.IsAbs(dir) {
		return dir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return filepath.Join(wd, dir), nil
}

func listMigrations(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		migrations = append(migrations, entry.Name())
	}
	sort.Strings(migrations)
	return migrations, nil
}

func appliedMigrations(ctx context.Context, conn *pgxpool.Conn) (map[string]struct{}, error) {
	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
                version TEXT PRIMARY KEY,
                applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("fetch applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return applied, nil
}

func applyMigrationWithRetry(ctx context.Context, out io.Writer, conn *pgxpool.Conn, name string, contents string) error {
	var attempt int
	for attempt = 0; attempt < migrationMaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, migrationBackoff(attempt)); err != nil {
				return err
			}
		}

		tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("begin migration transaction for %s: %w", name, err)
		}

		stage, err := applyMigrationTx(ctx, tx, name, contents)
		if err == nil {
			return nil
		}
		_ = tx.Rollback(ctx)
		if shouldRetryMigration(err) && attempt < migrationMaxRetries-1 {
			fmt.Fprintf(out, "transient error %s migration %s (attempt %d/%d): %v\n", stage, name, attempt+1, migrationMaxRetries, err)
			continue
		}
		return fmt.Errorf("%s migration %s: %w", stage, name, err)
	}

	return fmt.Errorf("apply migration %s: exceeded max retries (%d)", name, attempt)
}

// applyMigrationTx reports which stage failed so retries can say so.
func applyMigrationTx(ctx context.Context, tx pgx.Tx, name, contents string) (string, error) {
	if _, err := tx.Exec(ctx, contents); err != nil {
		return "applying", err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		return "recording", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "committing", err
	}
	return "", nil
}

func migrationBackoff(attempt int) time.Duration {
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * migrationBaseBackoff
	if backoff > migrationMaxBackoff {
		backoff = migrationMaxBackoff
	}
	return backoff
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func shouldRetryMigration(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := retryablePgErrorCodes[pgErr.Code]; ok {
			return true
		}
	}

	return errors.Is(err, pgx.ErrTxClosed)
}
