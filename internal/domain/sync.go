package domain

import (
	"encoding/json"
	"time"
)

// SyncResult holds the outcome of one source run.
type SyncResult struct {
	SourceURL     string   `json:"source_url"`
	ImportedCount int      `json:"imported_count"`
	SkippedCount  int      `json:"skipped_count"`
	ErrorCount    int      `json:"error_count"`
	Errors        []string `json:"errors"`
	Imported      []int64  `json:"imported,omitempty"`
}

// AggregateResult holds the outcome of a run over all sources.
type AggregateResult struct {
	TotalSources          int      `json:"total_sources"`
	SuccessfulSources     int      `json:"successful_sources"`
	TotalArticlesImported int      `json:"total_articles_imported"`
	Errors                []string `json:"errors"`
}

// Trigger is the origin of a run.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerSchedule Trigger = "scheduled"
	TriggerExternal Trigger = "external-trigger"
)

func (t Trigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerSchedule, TriggerExternal:
		return true
	}
	return false
}

// LogEntry is one persisted run record.
type LogEntry struct {
	ID        string          `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	SourceURL *string         `json:"source_url,omitempty"`
	Success   bool            `json:"success"`
	Message   string          `json:"message"`
	Result    json.RawMessage `json:"result,omitempty"`
	Trigger   Trigger         `json:"trigger"`
}

// ScheduledEvent describes one armed scheduler event.
type ScheduledEvent struct {
	Name     string        `json:"name"`
	NextRun  time.Time     `json:"next_run"`
	Schedule string        `json:"schedule"`
	Interval time.Duration `json:"interval,omitempty"`
	Args     []string      `json:"args,omitempty"`
}

// CronInfo summarizes the scheduler state for the trigger surface.
type CronInfo struct {
	Events         []ScheduledEvent `json:"events"`
	NextRun        *time.Time       `json:"next_run,omitempty"`
	NextRunMessage string           `json:"next_run_message"`
}
