package logging

import "log/slog"

// Common field names used across the service.
const (
	FieldService  = "service"
	FieldUserID   = "user_id"
	FieldSourceID = "source_id"
	FieldEventID  = "event_id"
	FieldThreatID = "threat_id"
	FieldAlertID  = "alert_id"
	FieldIP       = "ip"
	FieldError    = "error"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// UserID returns a slog attribute for the owning user ID.
func UserID(id string) slog.Attr {
	return slog.String(FieldUserID, id)
}

// SourceID returns a slog attribute for the event source ID.
func SourceID(id string) slog.Attr {
	return slog.String(FieldSourceID, id)
}

// EventID returns a slog attribute for a raw or normalized event ID.
func EventID(id string) slog.Attr {
	return slog.String(FieldEventID, id)
}

// Error returns a slog attribute for an error value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
