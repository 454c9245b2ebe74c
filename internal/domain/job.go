package domain

import "time"

// Job is an interactive sync request executed in the background. An empty
// SourceURL means all sources.
type Job struct {
	ID          string    `json:"id"`
	SourceURL   string    `json:"source_url,omitempty"`
	Trigger     Trigger   `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}
