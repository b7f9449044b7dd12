package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/jemadeira/extrato/internal/domain"
)

func TestMemoryLog(t *testing.T) {
	log := NewMemoryLog()

	entries := []Entry{
		{Kind: KindClassification, TransactionID: "t1", Category: "Alimentação", Source: domain.SourceAI},
		{Kind: KindClassification, TransactionID: "t2", Category: "Outros", Source: domain.SourceFallback, Flagged: true},
		{Kind: KindClassification, TransactionID: "t3", Category: "Outros", Source: domain.SourceRule},
		{Kind: KindSkippedRecord, Reasoning: "missing date"},
	}
	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	got := log.Entries()
	if len(got) != 4 {
		t.Fatalf("got %d entries, want 4", len(got))
	}
	for i, e := range got {
		if e.Timestamp.IsZero() {
			t.Errorf("entry %d has zero timestamp", i)
		}
	}

	counts := log.BySource()
	if counts[domain.SourceAI] != 1 || counts[domain.SourceFallback] != 1 || counts[domain.SourceRule] != 1 {
		t.Errorf("BySource() = %v", counts)
	}
}

func TestMemoryLog_ConcurrentAppends(t *testing.T) {
	log := NewMemoryLog()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = log.Record(Entry{Kind: KindClassification, Source: domain.SourceAI})
		}()
	}
	wg.Wait()

	if got := len(log.Entries()); got != 50 {
		t.Errorf("got %d entries, want 50", got)
	}
}

func TestExcerpt(t *testing.T) {
	short := "resposta curta"
	if got := Excerpt(short); got != short {
		t.Errorf("Excerpt(short) = %q, want unchanged", got)
	}

	long := strings.Repeat("x", 1000)
	got := Excerpt(long)
	if len(got) != maxRawResponse+3 {
		t.Errorf("Excerpt(long) length = %d, want %d", len(got), maxRawResponse+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("truncated excerpt must end with ellipsis")
	}
}

func TestFileLog_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	log, err := NewFileLog(dir)
	if err != nil {
		t.Fatalf("NewFileLog failed: %v", err)
	}

	entries := []Entry{
		{Kind: KindClassification, TransactionID: "t1", Description: "SUPERMERCADO", Category: "Alimentação", Source: domain.SourceAI, Confidence: 0.9},
		{Kind: KindClassification, TransactionID: "t2", Description: "DESCONHECIDO", Category: "Outros", Source: domain.SourceFallback, Reasoning: "no label in response", Flagged: true},
		{Kind: KindSkippedRecord, Reasoning: "unparseable date"},
	}
	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// JSONL stream: one valid JSON object per line, in append order.
	f, err := os.Open(log.Path())
	if err != nil {
		t.Fatalf("opening jsonl: %v", err)
	}
	defer f.Close()

	var read []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", len(read)+1, err)
		}
		read = append(read, e)
	}
	if len(read) != 3 {
		t.Fatalf("got %d jsonl lines, want 3", len(read))
	}
	if read[0].TransactionID != "t1" || read[1].TransactionID != "t2" {
		t.Errorf("entries out of order: %v, %v", read[0].TransactionID, read[1].TransactionID)
	}
	if !read[1].Flagged {
		t.Error("flagged entry lost its flag")
	}
	if read[0].Timestamp.IsZero() {
		t.Error("persisted entry has zero timestamp")
	}

	// Companion report.
	reportPath := strings.TrimSuffix(log.Path(), ".jsonl") + ".txt"
	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	report := string(data)
	for _, want := range []string{"total entries: 3", "classification: 2", "skipped_record: 1", "fallback: 1", "flagged for review (1)", "t2"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q\n%s", want, report)
		}
	}
}

func TestNewFileLog_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "audit")

	log, err := NewFileLog(dir)
	if err != nil {
		t.Fatalf("NewFileLog failed: %v", err)
	}
	defer log.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("log directory not created: %v", err)
	}
}
