package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rework/video-access/pkg/logger"
	"github.com/rework/video-access/pkg/response"
)

type trackGuestViewReq struct {
	DeviceID  string `json:"device_id,omitempty"`
	ContentID string `json:"content_id"`
}

type syncGuestViewsReq struct {
	DeviceID   string   `json:"device_id"`
	ContentIDs []string `json:"content_ids"`
}

// TrackGuestView records one anonymous view and returns the quota snapshot.
// POST /guests/views
func (h *Handlers) TrackGuestView(w http.ResponseWriter, r *http.Request) {
	var req trackGuestViewReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.ContentID == "" {
		response.BadRequest(w, "content_id is required")
		return
	}

	quota, err := h.guestService.TrackView(r.Context(), req.DeviceID, req.ContentID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to track guest view", "error", err)
		response.InternalError(w, "failed to track view")
		return
	}

	response.WriteJSON(w, http.StatusOK, quota)
}

// GetGuestViews returns the quota snapshot for a device.
// GET /guests/views/{deviceID}
func (h *Handlers) GetGuestViews(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if deviceID == "" {
		response.BadRequest(w, "device id is required")
		return
	}

	quota, err := h.guestService.Status(r.Context(), deviceID)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to get guest views", "error", err, "device_id", deviceID)
		response.InternalError(w, "failed to get view status")
		return
	}

	response.WriteJSON(w, http.StatusOK, quota)
}

// SyncGuestViews merges a batch of client-tracked views into the server copy.
// POST /guests/views/sync
func (h *Handlers) SyncGuestViews(w http.ResponseWriter, r *http.Request) {
	var req syncGuestViewsReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if req.DeviceID == "" || req.ContentIDs == nil {
		response.BadRequest(w, "device_id and content_ids are required")
		return
	}

	quota, err := h.guestService.Sync(r.Context(), req.DeviceID, req.ContentIDs)
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to sync guest views", "error", err, "device_id", req.DeviceID)
		response.InternalError(w, "failed to sync views")
		return
	}

	response.WriteJSON(w, http.StatusOK, quota)
}

// ResetGuestViews clears the quota, called after successful registration.
// DELETE /guests/views/{deviceID}
func (h *Handlers) ResetGuestViews(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	if deviceID == "" {
		response.BadRequest(w, "device id is required")
		return
	}

	if err := h.guestService.Reset(r.Context(), deviceID); err != nil {
		logger.ErrorContext(r.Context(), "Failed to reset guest views", "error", err, "device_id", deviceID)
		response.InternalError(w, "failed to reset views")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
