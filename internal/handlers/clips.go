package handlers

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/jzydn/jay-clips-archive/internal/clips"
	"github.com/jzydn/jay-clips-archive/internal/logging"
	"github.com/jzydn/jay-clips-archive/internal/models"
)

const (
	multipartMemory     = 32 << 20
	maxPrivacyBodyBytes = 1 << 10
)

// ClipHandler serves the clip metadata endpoints.
type ClipHandler struct {
	Clips          ClipService
	Privilege      PrivilegeResolver
	MaxUploadBytes int64
}

type clipResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Clip    models.Clip `json:"clip"`
}

type clipListResponse struct {
	Success bool          `json:"success"`
	Clips   []models.Clip `json:"clips"`
}

type privacyRequest struct {
	IsPrivate *bool `json:"isPrivate"`
}

func (h ClipHandler) privileged(r *http.Request) bool {
	if check, ok := privilegeFromContext(r.Context()); ok {
		return check()
	}
	return h.Privilege != nil && h.Privilege.IsPrivileged(r)
}

// Upload handles POST /clips.
func (h ClipHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.Clips == nil {
		respondMessage(ctx, w, http.StatusInternalServerError, "clip service unavailable")
		return
	}

	if h.MaxUploadBytes > 0 {
		if r.ContentLength > h.MaxUploadBytes {
			respondMessage(ctx, w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondMessage(ctx, w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		respondMessage(ctx, w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	in := clips.UploadInput{
		Title:    r.FormValue("title"),
		Subtitle: r.FormValue("subtitle"),
		Game:     r.FormValue("game"),
		Duration: r.FormValue("duration"),
	}

	ownerRaw := strings.TrimSpace(firstNonEmpty(r.FormValue("ownerId"), r.FormValue("userId")))
	if ownerRaw != "" {
		ownerID, err := strconv.ParseInt(ownerRaw, 10, 64)
		if err != nil || ownerID <= 0 {
			respondMessage(ctx, w, http.StatusBadRequest, "ownerId must be a positive integer")
			return
		}
		in.OwnerID = ownerID
	}

	file, header, err := formFile(r, "file", "video")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid file upload")
		return
	}
	if file != nil {
		defer file.Close()
		in.File = file
		in.Filename = header.Filename
		in.ContentType = header.Header.Get("Content-Type")
	}

	clip, err := h.Clips.Upload(ctx, in)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	logging.FromContext(ctx).Info("clip uploaded", "clip_id", clip.ID, "file_path", clip.FilePath)
	respondJSON(ctx, w, http.StatusCreated, clipResponse{
		Success: true,
		Message: "Clip uploaded successfully",
		Clip:    clip,
	})
}

// GetByHash handles GET /clips/by-hash/{hash}.
func (h ClipHandler) GetByHash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clip, err := h.Clips.GetByHash(ctx, r.PathValue("hash"), h.privileged(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clipResponse{Success: true, Clip: clip})
}

// SetPrivacy handles PATCH /clips/{id}/privacy.
func (h ClipHandler) SetPrivacy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseID(r.PathValue("id"))
	if !ok {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid clip id")
		return
	}

	var req privacyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPrivacyBodyBytes)).Decode(&req); err != nil || req.IsPrivate == nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondMessage(ctx, w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		respondMessage(ctx, w, http.StatusBadRequest, "isPrivate must be a boolean")
		return
	}

	if err := h.Clips.SetPrivacy(ctx, id, *req.IsPrivate); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, http.StatusOK, "Privacy updated")
}

// Delete handles DELETE /clips/{id}.
func (h ClipHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, ok := parseID(r.PathValue("id"))
	if !ok {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid clip id")
		return
	}

	if err := h.Clips.DeleteClip(ctx, id); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, http.StatusOK, "Clip deleted")
}

// ListByOwner handles GET /clips/owner/{ownerId}.
func (h ClipHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, ok := parseID(r.PathValue("ownerId"))
	if !ok {
		respondMessage(ctx, w, http.StatusBadRequest, "invalid owner id")
		return
	}

	list, err := h.Clips.ListForOwner(ctx, ownerID, h.privileged(r))
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clipListResponse{Success: true, Clips: list})
}

// ListRecent handles GET /clips/recent.
func (h ClipHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondMessage(ctx, w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	list, err := h.Clips.ListRecentPublic(ctx, limit)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	respondJSON(ctx, w, http.StatusOK, clipListResponse{Success: true, Clips: list})
}

// RecordView handles POST /clips/{idOrHash}/view.
func (h ClipHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.Clips.RecordView(ctx, r.PathValue("idOrHash")); err != nil {
		respondError(ctx, w, err)
		return
	}
	respondMessage(ctx, w, http.StatusOK, "View recorded")
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func formFile(r *http.Request, fields ...string) (multipart.File, *multipart.FileHeader, error) {
	for _, field := range fields {
		file, header, err := r.FormFile(field)
		if errors.Is(err, http.ErrMissingFile) {
			continue
		}
		return file, header, err
	}
	return nil, nil, http.ErrMissingFile
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
