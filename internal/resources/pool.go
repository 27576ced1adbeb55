// Package resources holds the live registry of response units. The pool is
// the single place reservation races are decided; readiness transitions are
// validated by the dispatch layer before they reach it.
package resources

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/dispatch-service/internal/domain"
)

var (
	// ErrUnitNotFound signals an unknown unit ID.
	ErrUnitNotFound = errors.New("resources: unit not found")
	// ErrReadinessConflict signals a lost compare-and-swap on readiness.
	ErrReadinessConflict = errors.New("resources: readiness changed concurrently")
)

// Pool is the in-memory authoritative unit registry. Persistence is written
// through by the services that mutate it.
type Pool struct {
	mu     sync.RWMutex
	units  map[string]*domain.ResourceUnit
	notify chan struct{}
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{
		units:  make(map[string]*domain.ResourceUnit),
		notify: make(chan struct{}, 1),
	}
}

// Load seeds the pool from persisted units, replacing current contents.
func (p *Pool) Load(units []domain.ResourceUnit) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.units = make(map[string]*domain.ResourceUnit, len(units))
	for i := range units {
		unit := units[i]
		p.units[unit.ID] = &unit
	}
}

// Register adds a new unit to the pool.
func (p *Pool) Register(unit domain.ResourceUnit) error {
	p.mu.Lock()
	if _, exists := p.units[unit.ID]; exists {
		p.mu.Unlock()
		return fmt.Errorf("unit %s already registered", unit.ID)
	}
	p.units[unit.ID] = &unit
	p.mu.Unlock()

	if unit.Readiness == domain.ReadinessAvailable {
		p.signal()
	}
	return nil
}

// Get returns a copy of the unit.
func (p *Pool) Get(unitID string) (domain.ResourceUnit, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	unit, exists := p.units[unitID]
	if !exists {
		return domain.ResourceUnit{}, false
	}
	return *unit, true
}

// List returns copies of all units ordered by call sign then ID.
func (p *Pool) List() []domain.ResourceUnit {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.ResourceUnit, 0, len(p.units))
	for _, unit := range p.units {
		out = append(out, *unit)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CallSign != out[j].CallSign {
			return out[i].CallSign < out[j].CallSign
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ListAvailable returns unreserved available units, optionally filtered to a
// travel radius around the given location. A non-positive radius disables the
// filter. Results are sorted nearest-first.
func (p *Pool) ListAvailable(near domain.Location, maxRadiusMeters float64) []domain.ResourceUnit {
	p.mu.RLock()
	out := make([]domain.ResourceUnit, 0, len(p.units))
	for _, unit := range p.units {
		if !unit.Available() {
			continue
		}
		if maxRadiusMeters > 0 && unit.Location.DistanceMeters(near) > maxRadiusMeters {
			continue
		}
		out = append(out, *unit)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		di := out[i].Location.DistanceMeters(near)
		dj := out[j].Location.DistanceMeters(near)
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// TryReserve marks the unit as held by the incident. The check and the write
// happen under one lock, so two incidents competing for the same unit cannot
// both win. Returns false when the unit is gone, already reserved, or not
// available.
func (p *Pool) TryReserve(unitID, incidentID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	unit, exists := p.units[unitID]
	if !exists || !unit.Available() {
		return false
	}
	holder := incidentID
	unit.ActiveIncidentID = &holder
	unit.UpdatedAt = time.Now().UTC()
	return true
}

// ReleaseForIncident clears every reservation held by the incident and
// returns the released units to available. Units that went out_of_service
// while held keep that state and need explicit reinstatement. Returns copies
// of the released units.
func (p *Pool) ReleaseForIncident(incidentID string) []domain.ResourceUnit {
	p.mu.Lock()
	released := make([]domain.ResourceUnit, 0, 4)
	for _, unit := range p.units {
		if unit.ActiveIncidentID == nil || *unit.ActiveIncidentID != incidentID {
			continue
		}
		unit.ActiveIncidentID = nil
		if unit.Readiness != domain.ReadinessOutOfService {
			unit.Readiness = domain.ReadinessAvailable
		}
		unit.UpdatedAt = time.Now().UTC()
		released = append(released, *unit)
	}
	p.mu.Unlock()

	if len(released) > 0 {
		p.signal()
	}
	sort.Slice(released, func(i, j int) bool { return released[i].ID < released[j].ID })
	return released
}

// CompareAndSwapReadiness moves the unit from the expected readiness to the
// next one atomically. ErrReadinessConflict reports a lost race; the caller
// decides whether to retry or reject. A swap into available also drops any
// reservation, keeping the invariant that available units are unreserved.
func (p *Pool) CompareAndSwapReadiness(unitID string, from, to domain.ReadinessState) (domain.ResourceUnit, error) {
	p.mu.Lock()
	unit, exists := p.units[unitID]
	if !exists {
		p.mu.Unlock()
		return domain.ResourceUnit{}, ErrUnitNotFound
	}
	if unit.Readiness != from {
		current := *unit
		p.mu.Unlock()
		return current, ErrReadinessConflict
	}
	unit.Readiness = to
	if to == domain.ReadinessAvailable {
		unit.ActiveIncidentID = nil
	}
	unit.UpdatedAt = time.Now().UTC()
	updated := *unit
	p.mu.Unlock()

	if to == domain.ReadinessAvailable {
		p.signal()
	}
	return updated, nil
}

// HeldBy returns copies of the units currently reserved by the incident,
// ordered by ID.
func (p *Pool) HeldBy(incidentID string) []domain.ResourceUnit {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]domain.ResourceUnit, 0, 4)
	for _, unit := range p.units {
		if unit.ActiveIncidentID != nil && *unit.ActiveIncidentID == incidentID {
			out = append(out, *unit)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Notifications exposes a signal that fires when capacity may have freed:
// releases, reinstatements, and new available registrations. The channel is
// coalescing; one receive may cover several changes.
func (p *Pool) Notifications() <-chan struct{} {
	return p.notify
}

func (p *Pool) signal() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}
