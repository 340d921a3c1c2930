package domain

import "errors"

// Exhausted, SessionExpired and Denied are expected user-facing terminal
// outcomes and are never auto-retried. DownstreamUnavailable is retried
// internally with bounded backoff. On any ambiguous condition on the
// consume-or-issue path the answer is deny.
var (
	ErrNotFound              = errors.New("not found")
	ErrExhausted             = errors.New("view limit exhausted")
	ErrSessionExpired        = errors.New("session past absolute deadline")
	ErrDenied                = errors.New("access denied")
	ErrConflict              = errors.New("attempt id reused with different parameters")
	ErrDownstreamUnavailable = errors.New("storage provider unavailable")
)
