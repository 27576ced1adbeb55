package observability

import (
	"strconv"
	"sync"
	"time"
)

// Pipeline stage labels for counter keys.
const (
	StageReceived           = "incidents_received"
	StageAssessed           = "incidents_assessed"
	StageAssessmentFallback = "assessment_fallbacks"
	StageQueued             = "incidents_queued"
	StageAllocated          = "incidents_allocated"
	StagePartialAllocated   = "incidents_allocated_partial"
	StageDispatched         = "incidents_dispatched"
	StageResolved           = "incidents_resolved"
	StageCancelled          = "incidents_cancelled"
	StageAllocationRetries  = "allocation_retries"
)

// Metrics provides basic in-memory counters for the HTTP surface and the
// dispatch pipeline.
type Metrics struct {
	mu           sync.Mutex
	requestCount map[string]int64
	errorCount   map[string]int64
	stageCount   map[string]int64
	queueDepth   int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		stageCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordStage increments a pipeline stage counter.
func (m *Metrics) RecordStage(stage string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageCount[stage]++
}

// SetQueueDepth records the current triage queue length.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueDepth = int64(depth)
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Stages     map[string]int64 `json:"stages"`
	Requests   int64            `json:"requests"`
	Errors     int64            `json:"errors"`
	QueueDepth int64            `json:"queue_depth"`
}

// Snapshot copies the pipeline counters plus the queue depth gauge and the
// HTTP totals.
func (m *Metrics) Snapshot() StatsSnapshot {
	if m == nil {
		return StatsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := StatsSnapshot{
		Stages:     make(map[string]int64, len(m.stageCount)),
		QueueDepth: m.queueDepth,
	}
	for k, v := range m.stageCount {
		snapshot.Stages[k] = v
	}
	for _, v := range m.requestCount {
		snapshot.Requests += v
	}
	for _, v := range m.errorCount {
		snapshot.Errors += v
	}
	return snapshot
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
