package domain

import "time"

// Purge reasons recorded on deletion records.
const (
	PurgeReasonExhausted = "exhausted"
	PurgeReasonAdmin     = "admin_purge"
)

// DeletionRecord schedules the irreversible purge of an exhausted grant.
// Terminal once ExecutedAt is set; cancelable only before then.
type DeletionRecord struct {
	GrantID     string     `json:"grant_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	CanceledAt  *time.Time `json:"canceled_at,omitempty"`
	Reason      string     `json:"reason"`
	Attempts    int        `json:"attempts"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (d *DeletionRecord) Executed() bool {
	return d.ExecutedAt != nil
}

func (d *DeletionRecord) Canceled() bool {
	return d.CanceledAt != nil
}
