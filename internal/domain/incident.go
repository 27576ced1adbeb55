package domain

import "time"

// IncidentCategory enumerates recognized emergency categories.
type IncidentCategory string

const (
	CategoryCardiac IncidentCategory = "cardiac"
	CategoryTrauma  IncidentCategory = "trauma"
	CategoryFire    IncidentCategory = "fire"
	CategoryOther   IncidentCategory = "other"
	CategoryUnknown IncidentCategory = "unknown"
)

// IncidentStatus enumerates lifecycle states for incidents.
type IncidentStatus string

const (
	IncidentStatusNew        IncidentStatus = "new"
	IncidentStatusQueued     IncidentStatus = "queued"
	IncidentStatusAllocated  IncidentStatus = "allocated"
	IncidentStatusDispatched IncidentStatus = "dispatched"
	IncidentStatusResolved   IncidentStatus = "resolved"
	IncidentStatusCancelled  IncidentStatus = "cancelled"
)

// Severity bounds for incident scoring.
const (
	MinSeverity = 1
	MaxSeverity = 10
)

// PriorityBand groups severities into response tiers.
type PriorityBand string

const (
	BandCritical PriorityBand = "critical"
	BandHigh     PriorityBand = "high"
	BandMedium   PriorityBand = "medium"
	BandLow      PriorityBand = "low"
)

// Incident is the aggregate for one emergency report. Degraded marks
// incidents assessed without a working classifier; their category and
// severity are fallback values an operator should revisit.
type Incident struct {
	ID            string
	ExternalKey   string
	Category      IncidentCategory
	Severity      int
	Confidence    float64
	Degraded      bool
	Location      Location
	Description   string
	Indicators    []string
	CallerContact *string
	Status        IncidentStatus
	QueuedAt      *time.Time
	DispatchedAt  *time.Time
	ClosedAt      *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Terminal reports whether the incident reached an immutable state.
func (i *Incident) Terminal() bool {
	return i.Status == IncidentStatusResolved || i.Status == IncidentStatusCancelled
}

// Band returns the response tier for the incident's severity.
func (i *Incident) Band() PriorityBand {
	return BandForSeverity(i.Severity)
}

// BandForSeverity maps a severity score to its response tier.
func BandForSeverity(severity int) PriorityBand {
	switch {
	case severity >= 8:
		return BandCritical
	case severity >= 6:
		return BandHigh
	case severity >= 4:
		return BandMedium
	default:
		return BandLow
	}
}

// ClampSeverity forces a score into the valid [MinSeverity, MaxSeverity] range.
func ClampSeverity(severity int) int {
	if severity < MinSeverity {
		return MinSeverity
	}
	if severity > MaxSeverity {
		return MaxSeverity
	}
	return severity
}

var incidentTransitions = map[IncidentStatus][]IncidentStatus{
	IncidentStatusNew:        {IncidentStatusQueued},
	IncidentStatusQueued:     {IncidentStatusAllocated, IncidentStatusCancelled},
	IncidentStatusAllocated:  {IncidentStatusDispatched, IncidentStatusCancelled},
	IncidentStatusDispatched: {IncidentStatusResolved, IncidentStatusCancelled},
	IncidentStatusResolved:   {},
	IncidentStatusCancelled:  {},
}

// CanTransitionIncident reports whether the status graph allows current -> next.
// No skips: each hop must go through the component responsible for it.
func CanTransitionIncident(current, next IncidentStatus) bool {
	for _, candidate := range incidentTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ValidCategory reports whether the category is one of the recognized values.
func ValidCategory(category IncidentCategory) bool {
	switch category {
	case CategoryCardiac, CategoryTrauma, CategoryFire, CategoryOther, CategoryUnknown:
		return true
	}
	return false
}
