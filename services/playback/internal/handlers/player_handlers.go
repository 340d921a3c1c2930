package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rework/video-access/pkg/logger"
	"github.com/rework/video-access/pkg/response"
	"github.com/rework/video-access/services/playback/internal/domain"
)

type playbackRes struct {
	SessionID      string    `json:"session_id"`
	URL            string    `json:"url"`
	ExpiresAt      time.Time `json:"expires_at"`
	ViewsRemaining int       `json:"views_remaining"`
	Exhausted      bool      `json:"exhausted"`
}

type heartbeatRes struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StartPlayback resolves the caller's grant and either continues the current
// sitting or consumes one view for a fresh one.
// POST /player/videos/{videoID}/playback
func (h *Handlers) StartPlayback(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	if videoID == "" {
		response.BadRequest(w, "video id is required")
		return
	}

	grant, err := h.grantService.GetByVideoAndScope(r.Context(), videoID, viewerScope(r))
	if errors.Is(err, domain.ErrNotFound) {
		response.NotFound(w, "no access grant for this video")
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to resolve grant", "error", err, "video_id", videoID)
		response.InternalError(w, "failed to resolve access")
		return
	}

	session, result, err := h.sessionService.Start(r.Context(), grant, viewerIdentity(r))
	if errors.Is(err, domain.ErrExhausted) {
		response.Exhausted(w, "view limit exhausted")
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to start session", "error", err, "grant_id", grant.ID)
		response.InternalError(w, "failed to start playback")
		return
	}

	url, expiresAt, err := h.urlService.Issue(r.Context(), session)
	if errors.Is(err, domain.ErrDenied) {
		response.Denied(w, "playback denied")
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to issue playback URL", "error", err, "session_id", session.ID)
		response.InternalError(w, "failed to issue playback URL")
		return
	}

	response.WriteJSON(w, http.StatusOK, playbackRes{
		SessionID:      session.ID,
		URL:            url,
		ExpiresAt:      expiresAt,
		ViewsRemaining: result.ViewsRemaining,
		Exhausted:      result.Exhausted,
	})
}

// Heartbeat extends the sitting and re-issues the URL. Never consumes.
// POST /player/sessions/{sessionID}/heartbeat
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.sessionService.Refresh(r.Context(), sessionID)
	if errors.Is(err, domain.ErrNotFound) {
		response.NotFound(w, "unknown session")
		return
	}
	if errors.Is(err, domain.ErrSessionExpired) {
		response.SessionExpired(w, "session past its deadline, start playback again")
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to refresh session", "error", err, "session_id", sessionID)
		response.InternalError(w, "failed to refresh session")
		return
	}

	url, expiresAt, err := h.urlService.Issue(r.Context(), session)
	if errors.Is(err, domain.ErrDenied) {
		response.Denied(w, "playback denied")
		return
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "Failed to issue playback URL", "error", err, "session_id", sessionID)
		response.InternalError(w, "failed to issue playback URL")
		return
	}

	response.WriteJSON(w, http.StatusOK, heartbeatRes{URL: url, ExpiresAt: expiresAt})
}

// EndSession terminates a sitting. Idempotent.
// DELETE /player/sessions/{sessionID}
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	reason := r.URL.Query().Get("reason")
	if err := h.sessionService.End(r.Context(), sessionID, reason); err != nil {
		logger.ErrorContext(r.Context(), "Failed to end session", "error", err, "session_id", sessionID)
		response.InternalError(w, "failed to end session")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stream is the delivery edge. Even a cryptographically valid token is
// refused once the grant is gone.
// GET /videos/{videoID}/stream?token=...
func (h *Handlers) Stream(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "videoID")
	token := r.URL.Query().Get("token")
	if token == "" {
		response.Denied(w, "playback token required")
		return
	}

	session, grant, err := h.urlService.Verify(r.Context(), token)
	if err != nil {
		response.Denied(w, "invalid or revoked playback token")
		return
	}
	if grant.VideoID != videoID {
		response.Denied(w, "token does not match video")
		return
	}

	// A delivery deployment proxies the segment stream here; this service
	// answers the authorization decision.
	response.WriteJSON(w, http.StatusOK, map[string]any{
		"video_id":   grant.VideoID,
		"session_id": session.ID,
		"authorized": true,
	})
}
