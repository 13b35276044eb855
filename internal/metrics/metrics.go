// Package metrics is the process-wide metrics facade.
//
// Converter code records through the package functions; the concrete Backend
// (nop by default, Datadog when configured) is installed once at startup with
// SetBackend. All functions are safe for concurrent use.
package metrics

import (
	"sync"
	"time"
)

// Metric names understood by backends.
const (
	StepTotal           = "jsonl2sql_step_total"
	StepDurationSeconds = "jsonl2sql_step_duration_seconds"
	RecordsTotal        = "jsonl2sql_records_total"
	SkippedTotal        = "jsonl2sql_skipped_total"
	CommitsTotal        = "jsonl2sql_commits_total"
)

// Labels are metric dimensions, e.g. {"step": "insert", "status": "ok"}.
type Labels map[string]string

// Backend receives metric events. Implementations buffer and submit on Flush.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
	Close() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }
func (nopBackend) Close() error                             { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the nop backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	current = b
	mu.Unlock()
}

func get() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func IncCounter(name string, delta float64, labels Labels) {
	get().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	get().ObserveHistogram(name, value, labels)
}

// Flush asks the installed backend to submit whatever it has buffered.
func Flush() error {
	return get().Flush()
}

// RecordStep counts one execution of a conversion step and its duration.
// status is "ok" or "error".
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, d.Seconds(), l)
}

// RecordRecords counts records by kind ("read", "inserted", "skipped").
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordSkip counts one skipped line by reason ("parse", "mismatch").
func RecordSkip(reason string) {
	IncCounter(SkippedTotal, 1, Labels{"reason": reason})
}

// RecordCommit counts one committed row transaction.
func RecordCommit() {
	IncCounter(CommitsTotal, 1, nil)
}
