package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/jzydn/jay-clips-archive/internal/clips"
	"github.com/jzydn/jay-clips-archive/internal/config"
	"github.com/jzydn/jay-clips-archive/internal/db"
	"github.com/jzydn/jay-clips-archive/internal/handlers"
	"github.com/jzydn/jay-clips-archive/internal/middleware"
	"github.com/jzydn/jay-clips-archive/internal/repositories"
	"github.com/jzydn/jay-clips-archive/internal/storage"
)

// blobStore is what the service and the delivery endpoint need from storage.
type blobStore interface {
	clips.BlobStore
	handlers.BlobOpener
	Put(ctx context.Context, storagePath string, r io.Reader) error
}

// openClipRepository connects to the configured database. The returned
// function releases the connection.
func openClipRepository(ctx context.Context, cfg config.Config) (repositories.ClipRepository, func(), error) {
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		conn, err := db.OpenSQLite(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		repo, err := repositories.NewSQLiteClipRepository(ctx, conn)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return repo, func() { _ = conn.Close() }, nil
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return repositories.NewPostgresClipRepository(pool), pool.Close, nil
	}
}

func openBlobStore(ctx context.Context, cfg config.Config) (blobStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendS3:
		return storage.NewS3Store(ctx, cfg.Storage.ObjectStore)
	case config.BackendLocal, "":
		return storage.NewLocalStore(cfg.Storage.Root)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func newClipService(repo repositories.ClipRepository, blobs clips.BlobStore, cfg config.Config) *clips.Service {
	return clips.NewService(repo, blobs, clips.Config{
		DefaultOwnerID: cfg.DefaultOwnerID,
		RecentLimit:    cfg.RecentLimit,
	})
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(svc handlers.ClipService, blobs handlers.BlobOpener, cfg config.Config) handlers.Dependencies {
	return handlers.Dependencies{
		Clips:          svc,
		Blobs:          blobs,
		Privilege:      handlers.NewOperatorCredential(cfg.Operator.Header, cfg.Operator.KeyHash),
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
}

// verifiedPrivilege is implemented by resolvers that can recognise an
// already-verified operator without repeating the expensive check.
type verifiedPrivilege interface {
	Verified(r *http.Request) bool
}

// newHTTPHandler registers routes and wraps them with request logging and
// the per-client limiter. Only the /clips API is rate limited. A known
// operator key bypasses the limiter; an unverified one spends a token before
// it is checked, so a limited client cannot force bcrypt work.
func newHTTPHandler(logger *slog.Logger, deps handlers.Dependencies, cfg config.Config) http.Handler {
	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	limiter := middleware.NewClientLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst)
	verified, _ := deps.Privilege.(verifiedPrivilege)
	exempt := func(r *http.Request) bool {
		if !strings.HasPrefix(r.URL.Path, "/clips") {
			return true
		}
		return verified != nil && verified.Verified(r)
	}

	var h http.Handler = mux
	h = handlers.ResolvePrivilege(deps.Privilege)(h)
	h = middleware.RateLimit(limiter, middleware.RateLimitOptions{
		Exempt:         exempt,
		TrustedProxies: cfg.RateLimit.TrustedProxies,
	})(h)
	return middleware.RequestLogger(logger)(h)
}
