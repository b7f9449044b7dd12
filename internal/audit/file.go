package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jemadeira/extrato/internal/domain"
)

// FileLog persists audit entries to disk in two forms: a structured JSONL
// stream written as decisions happen, and a human-readable session report
// produced on Close. One FileLog covers one upload; per-upload files keep
// writers from contending with each other.
type FileLog struct {
	mu      sync.Mutex
	f       *os.File
	enc     *json.Encoder
	path    string
	session string

	total    int
	byKind   map[EntryKind]int
	bySource map[domain.ClassificationSource]int
	flagged  []Entry
}

// NewFileLog creates the log directory if needed and opens a session-stamped
// JSONL file inside it.
func NewFileLog(dir string) (*FileLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit.NewFileLog: %w", err)
	}

	session := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("decisions_%s.jsonl", session))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit.NewFileLog: %w", err)
	}

	return &FileLog{
		f:        f,
		enc:      json.NewEncoder(f),
		path:     path,
		session:  session,
		byKind:   make(map[EntryKind]int),
		bySource: make(map[domain.ClassificationSource]int),
	}, nil
}

// Path returns the JSONL file location.
func (l *FileLog) Path() string { return l.path }

func (l *FileLog) Record(e Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if err := l.enc.Encode(e); err != nil {
		return fmt.Errorf("audit: appending entry: %w", err)
	}

	l.total++
	l.byKind[e.Kind]++
	if e.Kind == KindClassification {
		l.bySource[e.Source]++
	}
	if e.Flagged {
		l.flagged = append(l.flagged, e)
	}
	return nil
}

// Close flushes the JSONL stream and writes the companion human-readable
// report next to it.
func (l *FileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.f.Close(); err != nil {
		return fmt.Errorf("audit.Close: %w", err)
	}
	return l.writeReport()
}

func (l *FileLog) writeReport() error {
	reportPath := filepath.Join(filepath.Dir(l.path), fmt.Sprintf("decisions_%s.txt", l.session))
	f, err := os.Create(reportPath)
	if err != nil {
		return fmt.Errorf("audit.writeReport: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "CLASSIFICATION DECISION REPORT\n")
	fmt.Fprintf(f, "session: %s\n", l.session)
	fmt.Fprintf(f, "total entries: %d\n\n", l.total)

	fmt.Fprintf(f, "entries by kind:\n")
	for kind, n := range l.byKind {
		fmt.Fprintf(f, "  %s: %d\n", kind, n)
	}

	if len(l.bySource) > 0 {
		fmt.Fprintf(f, "\nclassifications by source:\n")
		for source, n := range l.bySource {
			fmt.Fprintf(f, "  %s: %d\n", source, n)
		}
	}

	if len(l.flagged) > 0 {
		fmt.Fprintf(f, "\nflagged for review (%d):\n", len(l.flagged))
		for _, e := range l.flagged {
			fmt.Fprintf(f, "  [%s] %s -> %s (%s): %s\n",
				e.Timestamp.Format(time.RFC3339), e.TransactionID, e.Category, e.Source, e.Reasoning)
		}
	}
	return nil
}
