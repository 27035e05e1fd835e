package models

// RegisterSourceRequest creates a new event source. The response carries the
// plaintext API key exactly once.
type RegisterSourceRequest struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	SourceType string `json:"source_type"`
}

// RotateKeyRequest starts a key rotation with an overlapping grace window.
type RotateKeyRequest struct {
	GraceSeconds int `json:"grace_seconds"`
}

// ListAlertsRequest filters the alert listing for the presentation layer.
type ListAlertsRequest struct {
	UserID   string
	Severity Severity
	Read     *bool
	Search   string
	Page     int
	Limit    int
}

// ListEventsRequest filters the normalized event listing.
type ListEventsRequest struct {
	UserID   string
	SourceID string
	Severity Severity
	Flagged  *bool
	Search   string
	Page     int
	Limit    int
}

// ListThreatsRequest filters the threat event listing.
type ListThreatsRequest struct {
	UserID   string
	Severity Severity
	Page     int
	Limit    int
}

// Normalize applies defaults for pagination fields.
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 500 {
		limit = 50
	}
	return page, limit
}

// Defaults returns the request with pagination defaults applied.
func (r ListAlertsRequest) Defaults() ListAlertsRequest {
	r.Page, r.Limit = normalizePage(r.Page, r.Limit)
	return r
}

// Defaults returns the request with pagination defaults applied.
func (r ListEventsRequest) Defaults() ListEventsRequest {
	r.Page, r.Limit = normalizePage(r.Page, r.Limit)
	return r
}

// Defaults returns the request with pagination defaults applied.
func (r ListThreatsRequest) Defaults() ListThreatsRequest {
	r.Page, r.Limit = normalizePage(r.Page, r.Limit)
	return r
}
