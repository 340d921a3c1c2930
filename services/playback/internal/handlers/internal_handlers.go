package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rework/video-access/pkg/logger"
	"github.com/rework/video-access/pkg/response"
	"github.com/rework/video-access/services/playback/internal/domain"
)

// CreateGrant provisions the view budget when a private video is attached to
// a viewer-facing context. Idempotent per (video_id, viewer_scope).
// POST /internal/grants
func (h *Handlers) CreateGrant(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateGrantReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.VideoID == "" || req.ViewerScope == "" {
		response.BadRequest(w, "video_id and viewer_scope are required")
		return
	}

	grant, err := h.grantService.CreateGrant(r.Context(), &req)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to create grant", "error", err, "video_id", req.VideoID)
		response.InternalError(w, "failed to create grant")
		return
	}

	response.WriteJSON(w, http.StatusOK, grant)
}

// GetGrant returns a read-only snapshot.
// GET /internal/grants/{grantID}
func (h *Handlers) GetGrant(w http.ResponseWriter, r *http.Request) {
	grantID := chi.URLParam(r, "grantID")

	grant, err := h.grantService.GetGrant(r.Context(), grantID)
	if errors.Is(err, domain.ErrNotFound) {
		response.NotFound(w, "grant not found")
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to get grant", "error", err, "grant_id", grantID)
		response.InternalError(w, "failed to get grant")
		return
	}

	response.WriteJSON(w, http.StatusOK, grant)
}

// PurgeGrant schedules an immediate administrative purge.
// DELETE /internal/grants/{grantID}
func (h *Handlers) PurgeGrant(w http.ResponseWriter, r *http.Request) {
	grantID := chi.URLParam(r, "grantID")

	err := h.grantService.AdminPurge(r.Context(), grantID)
	if errors.Is(err, domain.ErrNotFound) {
		response.NotFound(w, "grant not found")
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to schedule admin purge", "error", err, "grant_id", grantID)
		response.InternalError(w, "failed to schedule purge")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// CancelPurge withdraws a pending purge before it executes.
// POST /internal/grants/{grantID}/purge-cancel
func (h *Handlers) CancelPurge(w http.ResponseWriter, r *http.Request) {
	grantID := chi.URLParam(r, "grantID")

	canceled, err := h.grantService.CancelPurge(r.Context(), grantID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to cancel purge", "error", err, "grant_id", grantID)
		response.InternalError(w, "failed to cancel purge")
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]bool{"canceled": canceled})
}

// VideoStats summarizes grant activity for a video's owner.
// GET /internal/videos/{videoID}/stats
func (h *Handlers) VideoStats(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")

	stats, err := h.grantService.VideoStats(r.Context(), videoID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to get video stats", "error", err, "video_id", videoID)
		response.InternalError(w, "failed to get stats")
		return
	}

	response.WriteJSON(w, http.StatusOK, stats)
}
