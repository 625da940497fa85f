package audit

import "time"

// WSAPICall is one audited remote API request.
type WSAPICall struct {
	ID              int64     `json:"id"`
	AuthorID        *int64    `json:"author_id"`
	CorrelationID   string    `json:"correlation_id"`
	Method          string    `json:"method"`
	StatusCode      int       `json:"status_code"`
	StatusString    string    `json:"status_string"`
	ResponseContent string    `json:"response_content"`
	SourceEndpoint  string    `json:"source_endpoint,omitempty"`
	DurationMS      int64     `json:"duration_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// Filter controls which calls List returns.
type Filter struct {
	AuthorID   int64  // optional
	Method     string // optional
	StatusCode *int   // optional
	Limit      int    // default 50, max 200
	Offset     int
}

// ListResult is one page of audited calls.
type ListResult struct {
	Calls  []WSAPICall `json:"calls"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}
