// Package audit provides the append-only decision log the classifier adapter
// writes to. The log is an explicit collaborator passed into the pipeline,
// not ambient global state, so unit tests can swap in the in-memory
// implementation.
package audit

import (
	"sync"
	"time"

	"github.com/jemadeira/extrato/internal/domain"
)

// EntryKind distinguishes what a log entry records.
type EntryKind string

const (
	// KindClassification records one category decision for one transaction.
	KindClassification EntryKind = "classification"
	// KindSkippedRecord records a raw record dropped during normalization.
	KindSkippedRecord EntryKind = "skipped_record"
)

// Entry is one append-only audit record.
type Entry struct {
	Timestamp     time.Time                   `json:"timestamp"`
	Kind          EntryKind                   `json:"kind"`
	TransactionID string                      `json:"transaction_id,omitempty"`
	Description   string                      `json:"input_description,omitempty"`
	Category      string                      `json:"assigned_category,omitempty"`
	Source        domain.ClassificationSource `json:"source,omitempty"`
	Confidence    float64                     `json:"confidence,omitempty"`
	Reasoning     string                      `json:"reasoning,omitempty"`
	RawResponse   string                      `json:"raw_response_excerpt,omitempty"`
	// Flagged marks decisions that need human review: fallback categories and
	// out-of-vocabulary repairs.
	Flagged bool `json:"flagged,omitempty"`
}

// Log is an append-only sink for audit entries. Implementations must be safe
// for concurrent appends; entries are never updated or removed.
type Log interface {
	Record(e Entry) error
}

// maxRawResponse bounds the stored model-response excerpt.
const maxRawResponse = 400

// Excerpt truncates a raw model response for storage.
func Excerpt(raw string) string {
	if len(raw) <= maxRawResponse {
		return raw
	}
	return raw[:maxRawResponse] + "..."
}

// MemoryLog keeps entries in memory. It is the test double and also backs
// single-run reporting.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Record(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	l.entries = append(l.entries, e)
	return nil
}

// Entries returns a copy of everything recorded so far.
func (l *MemoryLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// BySource counts classification entries per source.
func (l *MemoryLog) BySource() map[domain.ClassificationSource]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[domain.ClassificationSource]int)
	for _, e := range l.entries {
		if e.Kind == KindClassification {
			counts[e.Source]++
		}
	}
	return counts
}
