package models

import "time"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Flag is a review marker attached to an order, product or customer. It never
// changes the entity's primary status.
type Flag struct {
	Type       string     `json:"type" validate:"required"`
	Severity   Severity   `json:"severity" validate:"oneof=low medium high"`
	Reason     string     `json:"reason"`
	Resolved   bool       `json:"resolved"`
	ResolvedBy string     `json:"resolvedBy,omitempty"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty"`
	CreatedBy  string     `json:"createdBy,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func NewFlag(flagType string, severity Severity, reason, actor string, at time.Time) Flag {
	if !severity.Valid() {
		severity = SeverityMedium
	}
	return Flag{
		Type:      flagType,
		Severity:  severity,
		Reason:    reason,
		CreatedBy: actor,
		CreatedAt: at,
	}
}

func openFlagCount(flags []Flag) int {
	n := 0
	for _, f := range flags {
		if !f.Resolved {
			n++
		}
	}
	return n
}
