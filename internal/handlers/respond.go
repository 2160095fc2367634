package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jzydn/jay-clips-archive/internal/clips"
	"github.com/jzydn/jay-clips-archive/internal/logging"
)

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

func respondMessage(ctx context.Context, w http.ResponseWriter, status int, message string) {
	respondJSON(ctx, w, status, messageResponse{
		Success: status < http.StatusBadRequest,
		Message: message,
	})
}

// respondError maps clip service errors onto status codes. Unknown errors
// are logged with their cause and reported with a generic message.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, clips.ErrInvalidInput):
		respondMessage(ctx, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, clips.ErrForbidden):
		respondMessage(ctx, w, http.StatusForbidden, "This clip is private")
	case errors.Is(err, clips.ErrNotFound):
		respondMessage(ctx, w, http.StatusNotFound, "Clip not found")
	default:
		logging.FromContext(ctx).Error("clip operation failed", "error", err)
		respondMessage(ctx, w, http.StatusInternalServerError, "Internal server error")
	}
}
