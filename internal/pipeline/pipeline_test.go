package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jemadeira/extrato/internal/audit"
	"github.com/jemadeira/extrato/internal/classify"
	"github.com/jemadeira/extrato/internal/config"
	"github.com/jemadeira/extrato/internal/domain"
)

const brasilFixture = `OFXHEADER:100
DATA:OFXSGML

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<FI><ORG>BANCO DO BRASIL S.A.</ORG></FI>
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<STMTRS>
<BANKACCTFROM>
<BANKID>001
<ACCTID>12345-6
</BANKACCTFROM>
<BANKTRANLIST>
<STMTTRN>
<TRNTYPE>OTHER
<DTPOSTED>20240301
<TRNAMT>0.00
<FITID>s0
<MEMO>Saldo Anterior
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240305
<TRNAMT>1000.00
<FITID>a1
<MEMO>TED RECEBIDA CLIENTE
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240310
<TRNAMT>-200.00
<FITID>a2
<MEMO>SUPERMERCADO PAGUE MENOS
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240315
<TRNAMT>-50.00
<FITID>a3
<MEMO>FARMACIA POPULAR
</STMTTRN>
</BANKTRANLIST>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>
`

// keywordReasoner labels by description keyword, standing in for the real
// service.
type keywordReasoner struct {
	err error
}

func (r *keywordReasoner) Classify(ctx context.Context, req classify.Request) (classify.Response, error) {
	if r.err != nil {
		return classify.Response{}, r.err
	}
	labels := make(map[string]string, len(req.Transactions))
	for _, tx := range req.Transactions {
		switch {
		case strings.Contains(tx.Description, "SUPERMERCADO"):
			labels[tx.ID] = "Alimentação"
		case strings.Contains(tx.Description, "FARMACIA"):
			labels[tx.ID] = "Saúde"
		default:
			labels[tx.ID] = "Outros"
		}
	}
	return classify.Response{Labels: labels, Raw: "[]"}, nil
}

func testConfig() config.Pipeline {
	cfg := config.Default()
	cfg.MaxAttempts = 1
	cfg.CallTimeout = config.Duration(time.Second)
	return cfg
}

func TestPipeline_Execute_EndToEnd(t *testing.T) {
	log := audit.NewMemoryLog()
	p, err := New(testConfig(), &keywordReasoner{}, log)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	state, err := p.Execute(context.Background(), []File{
		{Name: "marco.ofx", Data: []byte(brasilFixture)},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if state.Stage != StageCompleted {
		t.Fatalf("Stage = %q, want %q", state.Stage, StageCompleted)
	}

	run := state.Run
	if run.TotalParsed != 4 {
		t.Errorf("TotalParsed = %d, want 4", run.TotalParsed)
	}
	if run.BalanceDropped != 1 {
		t.Errorf("BalanceDropped = %d, want 1", run.BalanceDropped)
	}
	if run.TotalNormalized != 3 {
		t.Errorf("TotalNormalized = %d, want 3", run.TotalNormalized)
	}
	if run.RuleCount != 1 || run.AICount != 2 || run.FallbackCount != 0 {
		t.Errorf("counts = rule %d, ai %d, fallback %d; want 1, 2, 0",
			run.RuleCount, run.AICount, run.FallbackCount)
	}

	report := state.Report
	if report == nil {
		t.Fatal("missing aggregation report")
	}
	if got := report.TotalCredits.String(); got != "1000" {
		t.Errorf("TotalCredits = %s, want 1000", got)
	}
	if got := report.TotalDebits.String(); got != "250" {
		t.Errorf("TotalDebits = %s, want 250", got)
	}
	if got := report.Net.String(); got != "750" {
		t.Errorf("Net = %s, want 750", got)
	}

	// One audit entry per classified transaction.
	if got := len(log.Entries()); got != 3 {
		t.Errorf("got %d audit entries, want 3", got)
	}
}

func TestPipeline_Execute_BankAutoDetected(t *testing.T) {
	p, err := New(testConfig(), &keywordReasoner{}, audit.NewMemoryLog())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	// No Bank set on the file; the signon metadata decides.
	state, err := p.Execute(context.Background(), []File{
		{Name: "marco.ofx", Data: []byte(brasilFixture)},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	for _, tx := range state.Transactions {
		if tx.Bank != domain.BankBrasil {
			t.Fatalf("Bank = %q, want %q", tx.Bank, domain.BankBrasil)
		}
	}
}

func TestPipeline_Execute_PartialFileFailure(t *testing.T) {
	p, err := New(testConfig(), &keywordReasoner{}, audit.NewMemoryLog())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	state, err := p.Execute(context.Background(), []File{
		{Name: "ok.ofx", Bank: domain.BankBrasil, Data: []byte(brasilFixture)},
		{Name: "broken.ofx", Bank: domain.BankBrasil, Data: []byte("<OFX>not a statement")},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if state.Stage != StageCompleted {
		t.Fatalf("Stage = %q, want completed despite one bad file", state.Stage)
	}
	if len(state.Run.FileErrors) != 1 {
		t.Fatalf("got %d file errors, want 1", len(state.Run.FileErrors))
	}
	if state.Run.FileErrors[0].File != "broken.ofx" {
		t.Errorf("FileErrors[0].File = %q, want broken.ofx", state.Run.FileErrors[0].File)
	}
	var ferr *domain.FormatError
	if !errors.As(state.Run.FileErrors[0].Err, &ferr) {
		t.Errorf("FileErrors[0].Err = %v, want *domain.FormatError", state.Run.FileErrors[0].Err)
	}
	if state.Run.TotalNormalized != 3 {
		t.Errorf("TotalNormalized = %d, want the good file's 3", state.Run.TotalNormalized)
	}
}

func TestPipeline_Execute_AllFilesRejected(t *testing.T) {
	p, err := New(testConfig(), &keywordReasoner{}, audit.NewMemoryLog())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	state, err := p.Execute(context.Background(), []File{
		{Name: "a.ofx", Bank: domain.BankBrasil, Data: []byte("garbage")},
		{Name: "b.ofx", Bank: domain.BankBrasil, Data: []byte("<OFX></OFX>")},
	})
	if err == nil {
		t.Fatal("expected error when every file is rejected")
	}
	if !errors.Is(err, errAllFilesRejected) {
		t.Errorf("error = %v, want errAllFilesRejected", err)
	}
	if state.Stage != StageFailed {
		t.Errorf("Stage = %q, want %q", state.Stage, StageFailed)
	}
	if state.Run.FailedStage != StageReceived {
		t.Errorf("FailedStage = %q, want %q", state.Run.FailedStage, StageReceived)
	}
	if len(state.Run.FileErrors) != 2 {
		t.Errorf("got %d file errors, want 2", len(state.Run.FileErrors))
	}
}

func TestPipeline_Execute_ReasonerOutageDegradesToFallback(t *testing.T) {
	log := audit.NewMemoryLog()
	reasoner := &keywordReasoner{err: &domain.ClassificationTransientError{Err: fmt.Errorf("service down")}}
	p, err := New(testConfig(), reasoner, log)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	state, err := p.Execute(context.Background(), []File{
		{Name: "marco.ofx", Bank: domain.BankBrasil, Data: []byte(brasilFixture)},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if state.Stage != StageCompleted {
		t.Fatalf("Stage = %q, want completed; an unavailable service never fails the batch", state.Stage)
	}
	// The TED rule still fires; the two model-bound transactions fall back.
	if state.Run.RuleCount != 1 || state.Run.FallbackCount != 2 {
		t.Errorf("counts = rule %d, fallback %d; want 1, 2", state.Run.RuleCount, state.Run.FallbackCount)
	}
	for _, tx := range state.Transactions {
		if !tx.Classified() {
			t.Errorf("transaction %s left unclassified", tx.ID)
		}
	}
}

func TestPipeline_Execute_SkippedRecordsAreAudited(t *testing.T) {
	fixture := strings.Replace(brasilFixture, "<DTPOSTED>20240310", "<DTPOSTED>99999999", 1)

	log := audit.NewMemoryLog()
	p, err := New(testConfig(), &keywordReasoner{}, log)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	state, err := p.Execute(context.Background(), []File{
		{Name: "marco.ofx", Bank: domain.BankBrasil, Data: []byte(fixture)},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(state.Run.SkippedRecords) != 1 {
		t.Fatalf("got %d skipped records, want 1", len(state.Run.SkippedRecords))
	}
	if state.Run.TotalNormalized != 2 {
		t.Errorf("TotalNormalized = %d, want 2", state.Run.TotalNormalized)
	}

	skipped := 0
	for _, e := range log.Entries() {
		if e.Kind == audit.KindSkippedRecord {
			skipped++
			if !e.Flagged {
				t.Error("skipped-record entry must be flagged")
			}
		}
	}
	if skipped != 1 {
		t.Errorf("got %d skipped-record audit entries, want 1", skipped)
	}
}

func TestPipeline_Execute_Cancelled(t *testing.T) {
	p, err := New(testConfig(), &keywordReasoner{}, audit.NewMemoryLog())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := p.Execute(ctx, []File{
		{Name: "marco.ofx", Bank: domain.BankBrasil, Data: []byte(brasilFixture)},
	})
	if err == nil {
		t.Fatal("expected context error")
	}
	if state.Stage != StageFailed {
		t.Errorf("Stage = %q, want %q", state.Stage, StageFailed)
	}
}
