package model

import (
	"time"

	"github.com/google/uuid"
)

type IncidentSeverity string

const (
	IncidentSeverityInfo     IncidentSeverity = "info"
	IncidentSeverityWarning  IncidentSeverity = "warning"
	IncidentSeverityCritical IncidentSeverity = "critical"
)

type IncidentStatus string

const (
	IncidentStatusOpen     IncidentStatus = "open"
	IncidentStatusResolved IncidentStatus = "resolved"
)

const (
	IncidentTypeRepeatedFailure = "repeated_failure"
	IncidentTypeGlobalCap       = "global_cap"
	IncidentTypeManual          = "manual"
)

// RepeatedFailureType builds the per-reason incident type, e.g.
// "repeated_failure:git_failure". Window dedup keys on this string so two
// different failing reasons raise two incidents.
func RepeatedFailureType(reason FailureReason) string {
	return IncidentTypeRepeatedFailure + ":" + string(reason)
}

// Incident is an operator-visible safety event. Raised automatically by the
// failure monitor or the global cap check, resolved manually.
type Incident struct {
	ID         string
	Type       string
	Severity   IncidentSeverity
	Status     IncidentStatus
	Details    string
	CreatedAt  time.Time
	ResolvedAt *time.Time
}

func NewIncident(incidentType string, severity IncidentSeverity, details string) *Incident {
	return &Incident{
		ID:        uuid.NewString(),
		Type:      incidentType,
		Severity:  severity,
		Status:    IncidentStatusOpen,
		Details:   details,
		CreatedAt: time.Now(),
	}
}

func (i *Incident) Resolve() {
	now := time.Now()
	i.Status = IncidentStatusResolved
	i.ResolvedAt = &now
}
