package domain

import "time"

// GuestQuota is the anonymous browsing cap. It is advisory only: state lives
// in a shared cache keyed by a client-minted device id and shapes UX, it is
// not cross-checked on the grant path and is not a security boundary.
type GuestQuota struct {
	DeviceID     string     `json:"device_id"`
	ContentIDs   []string   `json:"content_ids"`
	Count        int        `json:"count"`
	Limit        int        `json:"limit"`
	Remaining    int        `json:"remaining"`
	LimitReached bool       `json:"limit_reached"`
	FirstViewAt  *time.Time `json:"first_view_at,omitempty"`
	LastViewAt   *time.Time `json:"last_view_at,omitempty"`
}
