// Package triage maintains the priority order of incidents awaiting
// resource allocation.
package triage

import (
	"container/heap"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Entry is one queued incident. EnqueuedAt is fixed at first insertion and
// survives reprioritization, so waiting time keeps accruing across severity
// changes.
type Entry struct {
	IncidentID string
	Severity   int
	EnqueuedAt time.Time
	index      int // position in the heap
}

// entryHeap implements heap.Interface ordered by severity descending, then
// enqueue time ascending, then incident ID ascending.
type entryHeap []*Entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].Severity != h[j].Severity {
		return h[i].Severity > h[j].Severity
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].IncidentID < h[j].IncidentID
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x interface{}) {
	entry := x.(*Entry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*h = old[0 : n-1]
	return entry
}

// Queue is the shared triage structure. All operations take the queue lock;
// per-incident serialization is the caller's concern.
type Queue struct {
	mu      sync.Mutex
	entries entryHeap
	byID    map[string]*Entry
}

// NewQueue creates an empty triage queue.
func NewQueue() *Queue {
	return &Queue{
		entries: make(entryHeap, 0),
		byID:    make(map[string]*Entry),
	}
}

// Enqueue inserts an incident with the given severity. Inserting an incident
// that is already queued is an error; use Reprioritize to change its order.
func (q *Queue) Enqueue(incidentID string, severity int, enqueuedAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.byID[incidentID]; exists {
		return fmt.Errorf("incident %s already queued", incidentID)
	}

	entry := &Entry{
		IncidentID: incidentID,
		Severity:   severity,
		EnqueuedAt: enqueuedAt,
	}
	q.byID[incidentID] = entry
	heap.Push(&q.entries, entry)
	return nil
}

// Peek returns the highest-priority entry without removing it.
func (q *Queue) Peek() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return Entry{}, false
	}
	return *q.entries[0], true
}

// Pop removes and returns the highest-priority entry.
func (q *Queue) Pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return Entry{}, false
	}
	entry := heap.Pop(&q.entries).(*Entry)
	delete(q.byID, entry.IncidentID)
	return *entry, true
}

// Reprioritize repositions a queued incident under a new severity in
// O(log n). The entry's enqueue time is preserved.
func (q *Queue) Reprioritize(incidentID string, newSeverity int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, exists := q.byID[incidentID]
	if !exists {
		return fmt.Errorf("incident %s not queued", incidentID)
	}
	entry.Severity = newSeverity
	heap.Fix(&q.entries, entry.index)
	return nil
}

// Remove drops an incident from the queue, reporting whether it was present.
func (q *Queue) Remove(incidentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, exists := q.byID[incidentID]
	if !exists {
		return false
	}
	heap.Remove(&q.entries, entry.index)
	delete(q.byID, incidentID)
	return true
}

// Contains reports whether the incident is currently queued.
func (q *Queue) Contains(incidentID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	_, exists := q.byID[incidentID]
	return exists
}

// Len returns the number of queued incidents.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.entries)
}

// Snapshot returns all entries in service order without mutating the queue.
func (q *Queue) Snapshot() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, len(q.entries))
	for i, entry := range q.entries {
		out[i] = *entry
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return out[i].Severity > out[j].Severity
		}
		if !out[i].EnqueuedAt.Equal(out[j].EnqueuedAt) {
			return out[i].EnqueuedAt.Before(out[j].EnqueuedAt)
		}
		return out[i].IncidentID < out[j].IncidentID
	})
	return out
}
