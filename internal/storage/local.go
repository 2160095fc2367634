package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore keeps blobs on the local filesystem under a root directory.
type LocalStore struct {
	root string
	now  func() time.Time
}

// NewLocalStore creates the root directory if needed and returns a store rooted there.
func NewLocalStore(root string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("local storage: root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("local storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, BlobDir), 0o755); err != nil {
		return nil, fmt.Errorf("local storage: create root: %w", err)
	}
	return &LocalStore{root: abs, now: time.Now}, nil
}

// Root returns the absolute directory blobs are stored under.
func (s *LocalStore) Root() string {
	return s.root
}

// Save writes r to a freshly generated path and returns that path relative to the root.
func (s *LocalStore) Save(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	if err := ValidateMedia(filename, contentType); err != nil {
		return "", err
	}

	name := newBlobPath(s.now(), filename)
	full := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("local storage: create dir: %w", err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("local storage: create %s: %w", name, err)
	}

	if _, err := io.Copy(f, contextReader{ctx: ctx, r: r}); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", fmt.Errorf("local storage: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(full)
		return "", fmt.Errorf("local storage: close %s: %w", name, err)
	}

	return name, nil
}

// Put writes r at storagePath, replacing any blob already there. The write
// goes to a temporary file that is renamed into place once complete.
func (s *LocalStore) Put(ctx context.Context, storagePath string, r io.Reader) error {
	if err := ValidateMedia(storagePath, ContentType(storagePath)); err != nil {
		return err
	}
	full, err := s.resolve(storagePath)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("local storage: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return fmt.Errorf("local storage: create temp for %s: %w", storagePath, err)
	}
	if _, err := io.Copy(tmp, contextReader{ctx: ctx, r: r}); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("local storage: write %s: %w", storagePath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("local storage: close %s: %w", storagePath, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("local storage: chmod %s: %w", storagePath, err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("local storage: rename %s: %w", storagePath, err)
	}
	return nil
}

// Open returns a seekable handle on the blob at storagePath.
func (s *LocalStore) Open(_ context.Context, storagePath string) (*Blob, error) {
	full, err := s.resolve(storagePath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("local storage: open %s: %w", storagePath, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("local storage: stat %s: %w", storagePath, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, ErrNotFound
	}

	return &Blob{
		Body:    f,
		Name:    path.Base(storagePath),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Delete removes the blob. A missing blob is not an error.
func (s *LocalStore) Delete(_ context.Context, storagePath string) error {
	full, err := s.resolve(storagePath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local storage: delete %s: %w", storagePath, err)
	}
	return nil
}

// Walk visits every regular file below the root.
func (s *LocalStore) Walk(ctx context.Context, fn WalkFunc) error {
	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		return fn(BlobInfo{Path: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
	})
}

func (s *LocalStore) resolve(storagePath string) (string, error) {
	cleaned, err := cleanStoragePath(storagePath)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
