package handlers

import (
	"errors"
	"net/http"

	"github.com/jzydn/jay-clips-archive/internal/logging"
	"github.com/jzydn/jay-clips-archive/internal/storage"
)

// FileHandler streams stored clip bytes. It does not consult clip privacy;
// callers learn paths only through the metadata endpoints.
type FileHandler struct {
	Blobs BlobOpener
}

// Serve handles GET and HEAD /files/{path...} with range support.
func (h FileHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Blobs == nil {
		respondMessage(ctx, w, http.StatusInternalServerError, "file storage unavailable")
		return
	}

	storagePath := r.PathValue("path")
	blob, err := h.Blobs.Open(ctx, storagePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidPath) {
			respondMessage(ctx, w, http.StatusNotFound, "File not found")
			return
		}
		logging.FromContext(ctx).Error("open clip file", "file_path", storagePath, "error", err)
		respondMessage(ctx, w, http.StatusInternalServerError, "Internal server error")
		return
	}
	defer blob.Body.Close()

	w.Header().Set("Content-Type", storage.ContentType(storagePath))
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, blob.Name, blob.ModTime, blob.Body)
}
