package domain

import "time"

// IncidentReport is the raw intake payload before assessment.
type IncidentReport struct {
	Description   string
	Location      Location
	Hints         []string
	CallerContact *string
	ReportedAt    time.Time
}

// Assessment is the interpreted view of a report produced by the
// classification stage.
type Assessment struct {
	Category   IncidentCategory
	Confidence float64
	Indicators []string
	Degraded   bool
}
