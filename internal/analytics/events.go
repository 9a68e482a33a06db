package analytics

import "time"

type EventType string

const (
	EventSearch     EventType = "search"
	EventZeroResult EventType = "zero_result"
	EventFailed     EventType = "failed"
)

// SearchEvent describes one answered (or failed) search request.
type SearchEvent struct {
	Type          EventType `json:"type"`
	Mode          string    `json:"mode"`
	Query         string    `json:"query"`
	Terms         []string  `json:"terms"`
	UnknownTerms  []string  `json:"unknown_terms,omitempty"`
	BodyMatches   int       `json:"body_matches"`
	TitleMatches  int       `json:"title_matches"`
	Returned      int       `json:"returned"`
	MissingTitles int       `json:"missing_titles"`
	LatencyMs     int64     `json:"latency_ms"`
	CacheHit      bool      `json:"cache_hit"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	RequestID     string    `json:"request_id"`
}

// Tracker accepts search events without blocking the caller.
type Tracker interface {
	Track(event SearchEvent)
}
