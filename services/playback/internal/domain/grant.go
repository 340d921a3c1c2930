package domain

import "time"

// AccessGrant caps how many times one viewer scope may play one private
// video. There is at most one grant per (video_id, viewer_scope) pair, ever;
// creation is idempotent and a grant is never recreated once it exists.
type AccessGrant struct {
	ID              string     `json:"id"`
	VideoID         string     `json:"video_id"`
	ViewerScope     string     `json:"viewer_scope"`
	MaxViews        int        `json:"max_views"`
	ViewsConsumed   int        `json:"views_consumed"`
	FirstConsumedAt *time.Time `json:"first_consumed_at,omitempty"`
	LastConsumedAt  *time.Time `json:"last_consumed_at,omitempty"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	ContextRef      string     `json:"context_ref"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// ConsumeResult is the outcome of one counted view.
type ConsumeResult struct {
	ViewsConsumed  int  `json:"views_consumed"`
	ViewsRemaining int  `json:"views_remaining"`
	Exhausted      bool `json:"exhausted"`
}

type CreateGrantReq struct {
	VideoID     string `json:"video_id"`
	ViewerScope string `json:"viewer_scope"`
	MaxViews    int    `json:"max_views,omitempty"`
	ContextRef  string `json:"context_ref,omitempty"`
}

// VideoStats summarizes grant activity for a video's owner.
type VideoStats struct {
	VideoID         string     `json:"video_id"`
	UniqueScopes    int        `json:"unique_scopes"`
	TotalViews      int        `json:"total_views"`
	ExhaustedScopes int        `json:"exhausted_scopes"`
	LastViewedAt    *time.Time `json:"last_viewed_at,omitempty"`
}

func (g *AccessGrant) Exhausted() bool {
	return g.ViewsConsumed >= g.MaxViews
}

func (g *AccessGrant) Deleted() bool {
	return g.DeletedAt != nil
}

func (g *AccessGrant) ViewsRemaining() int {
	if remaining := g.MaxViews - g.ViewsConsumed; remaining > 0 {
		return remaining
	}
	return 0
}
