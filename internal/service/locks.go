package service

import "sync"

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// IncidentLocks serializes all mutations of one incident and its allocation.
// Different incidents proceed in parallel; the same incident is single-writer.
// Entries are reference counted so the registry does not grow with the total
// number of incidents ever seen.
type IncidentLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

// NewIncidentLocks creates an empty lock registry.
func NewIncidentLocks() *IncidentLocks {
	return &IncidentLocks{entries: make(map[string]*lockEntry)}
}

// Acquire blocks until the incident's lock is held and returns the release
// function. Acquire is not reentrant.
func (l *IncidentLocks) Acquire(incidentID string) func() {
	l.mu.Lock()
	entry, exists := l.entries[incidentID]
	if !exists {
		entry = &lockEntry{}
		l.entries[incidentID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, incidentID)
		}
		l.mu.Unlock()
	}
}
