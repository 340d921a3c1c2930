package domain

import "time"

type SessionState string

const (
	SessionActive SessionState = "active"
	SessionEnded  SessionState = "ended"
)

// End reasons recorded on terminal sessions.
const (
	EndReasonClient       = "client_ended"
	EndReasonGrantDeleted = "grant_deleted"
	EndReasonExpired      = "expired"
)

// PlaybackSession authorizes one continuous viewing attempt. It points at a
// grant but never owns it; exhaustion of the grant ends the session, not the
// other way around.
type PlaybackSession struct {
	ID               string       `json:"id"`
	GrantID          string       `json:"grant_id"`
	ViewerIdentity   string       `json:"viewer_identity"`
	State            SessionState `json:"state"`
	ConsumedView     bool         `json:"consumed_view"`
	IssuedAt         time.Time    `json:"issued_at"`
	ExpiresAt        time.Time    `json:"expires_at"`
	AbsoluteDeadline time.Time    `json:"absolute_deadline"`
	LastSeenAt       time.Time    `json:"last_seen_at"`
	EndReason        string       `json:"end_reason,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

func (s *PlaybackSession) Active() bool {
	return s.State == SessionActive
}

// CanRefresh reports whether a refresh is still permitted. Letting the clock
// run out never costs a view by itself; starting over does.
func (s *PlaybackSession) CanRefresh(now time.Time) bool {
	return s.State == SessionActive && now.Before(s.AbsoluteDeadline)
}
