package handlers

import (
	"context"
	"net/http"

	"github.com/rework/video-access/pkg/logger"
	"github.com/rework/video-access/pkg/response"
	"github.com/rework/video-access/services/playback/internal/service"
)

type contextKey string

const (
	viewerScopeKey    contextKey = "viewer_scope"
	viewerIdentityKey contextKey = "viewer_identity"
)

type Handlers struct {
	grantService   service.GrantService
	sessionService service.SessionService
	urlService     service.URLService
	guestService   service.GuestService
}

func New(
	grantService service.GrantService,
	sessionService service.SessionService,
	urlService service.URLService,
	guestService service.GuestService,
) *Handlers {
	return &Handlers{
		grantService:   grantService,
		sessionService: sessionService,
		urlService:     urlService,
		guestService:   guestService,
	}
}

// RequireViewer reads the viewer scope and identity resolved by the gateway.
// The gateway authenticates the caller and maps it to an opaque scope; this
// service only enforces budgets against that scope.
func (h *Handlers) RequireViewer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope := r.Header.Get("X-Viewer-Scope")
		identity := r.Header.Get("X-Viewer-Id")

		if scope == "" || identity == "" {
			response.Unauthorized(w, "viewer scope and identity required")
			return
		}

		ctx := context.WithValue(r.Context(), viewerScopeKey, scope)
		ctx = context.WithValue(ctx, viewerIdentityKey, identity)
		ctx = context.WithValue(ctx, logger.ViewerIDKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func viewerScope(r *http.Request) string {
	if scope, ok := r.Context().Value(viewerScopeKey).(string); ok {
		return scope
	}
	return ""
}

func viewerIdentity(r *http.Request) string {
	if identity, ok := r.Context().Value(viewerIdentityKey).(string); ok {
		return identity
	}
	return ""
}
