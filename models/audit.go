package models

import "time"

// Change holds the before/after payload of an audited mutation.
type Change struct {
	Before map[string]any `json:"before,omitempty"`
	After  map[string]any `json:"after,omitempty"`
}

// AuditLogEntry is immutable once appended. ResourceID is nil for batch summaries.
type AuditLogEntry struct {
	ID           string         `json:"id"`
	ActorID      string         `json:"actorId"`
	Action       string         `json:"action"`
	ResourceType EntityType     `json:"resourceType"`
	ResourceID   *string        `json:"resourceId"`
	Changes      Change         `json:"changes"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Severity     Severity       `json:"severity"`
	Timestamp    time.Time      `json:"timestamp"`
}
