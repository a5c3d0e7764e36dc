// Package decision keeps the append-only audit trail of planner
// arbitration outcomes. The log lives for the lifetime of its owner, not
// one planning run.
package decision

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hubscout/hubscout/internal/planner"
)

// EventType is the telemetry type attached to every logged decision.
const EventType = "planner-decision"

// DefaultListLimit bounds List when the caller passes no limit.
const DefaultListLimit = 50

// Record is one arbitration decision. ID and Timestamp are filled in by
// Log; entries are immutable once stored.
type Record struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Kind      string                 `json:"kind"`
	Action    string                 `json:"action"`
	Rationale string                 `json:"rationale,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Logger records decisions in memory and notifies an optional external
// sink on a best-effort basis. It is safe for concurrent use; the API
// server and the scheduler both write to it.
type Logger struct {
	mu      sync.Mutex
	records []Record
	sink    planner.EmitFunc
	log     planner.Logger
}

// NewLogger builds a decision logger. Both the sink and the logger may
// be nil.
func NewLogger(sink planner.EmitFunc, log planner.Logger) *Logger {
	return &Logger{sink: sink, log: log}
}

// Log appends the entry, assigning a collision-tolerant id (epoch millis
// plus a random suffix), and returns the stored record. Sink failures
// are logged at warn level and never propagate.
func (l *Logger) Log(entry Record) Record {
	entry.ID = fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	l.records = append(l.records, entry)
	l.mu.Unlock()

	if l.sink != nil {
		func() {
			defer func() {
				if r := recover(); r != nil && l.log != nil {
					l.log.Warnf("decision sink failed for %s: %v", entry.ID, r)
				}
			}()
			l.sink(EventType, entry)
		}()
	}
	return entry
}

// List returns the most recent limit entries, oldest to newest within
// that window, as a fresh slice.
func (l *Logger) List(limit int) []Record {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	start := len(l.records) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Record, len(l.records)-start)
	copy(out, l.records[start:])
	return out
}

// Len reports how many decisions have been recorded.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
