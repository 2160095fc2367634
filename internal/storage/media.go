package storage

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUnsupportedMediaType is returned when a file is not an accepted video format.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrNotFound is returned when no blob exists at a storage path.
	ErrNotFound = errors.New("blob not found")
	// ErrInvalidPath is returned for storage paths that escape the store root.
	ErrInvalidPath = errors.New("invalid storage path")
)

// BlobDir is the directory, relative to the store root, that holds clip blobs.
const BlobDir = "videos"

const defaultContentType = "video/mp4"

var extensionContentTypes = map[string]string{
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}

var acceptedContentTypes = map[string]struct{}{
	"video/mp4":        {},
	"video/quicktime":  {},
	"video/mov":        {},
	"video/x-msvideo":  {},
	"video/avi":        {},
	"video/msvideo":    {},
	"video/x-matroska": {},
	"video/mkv":        {},
	"video/webm":       {},
}

// Blob is an open stored object. Body must be closed by the caller.
type Blob struct {
	Body    io.ReadSeekCloser
	Name    string
	Size    int64
	ModTime time.Time
}

// BlobInfo describes a stored object without opening it.
type BlobInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// WalkFunc is invoked for every blob visited by a store's Walk.
type WalkFunc func(info BlobInfo) error

// ValidateMedia checks both the filename extension and the declared content
// type against the video allow-list.
func ValidateMedia(filename, contentType string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := extensionContentTypes[ext]; !ok {
		return fmt.Errorf("%w: extension %q", ErrUnsupportedMediaType, ext)
	}

	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	} else if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if _, ok := acceptedContentTypes[mediaType]; !ok {
		return fmt.Errorf("%w: content type %q", ErrUnsupportedMediaType, contentType)
	}
	return nil
}

// ContentType maps a stored path to the Content-Type served for it.
func ContentType(storagePath string) string {
	if ct, ok := extensionContentTypes[strings.ToLower(path.Ext(storagePath))]; ok {
		return ct
	}
	return defaultContentType
}

// newBlobPath builds a collision-free relative path for an upload. Only the
// lower-cased extension is taken from the client filename.
func newBlobPath(now time.Time, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	return path.Join(BlobDir, fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString(), ext))
}

// cleanStoragePath normalises a slash-separated storage path and rejects
// anything that is empty, absolute, or climbs out of the root.
func cleanStoragePath(p string) (string, error) {
	if strings.TrimSpace(p) == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	cleaned := path.Clean(p)
	if !filepath.IsLocal(filepath.FromSlash(cleaned)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return cleaned, nil
}
