package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/jemadeira/extrato/internal/aggregate"
	"github.com/jemadeira/extrato/internal/audit"
	"github.com/jemadeira/extrato/internal/classify"
	"github.com/jemadeira/extrato/internal/domain"
	"github.com/jemadeira/extrato/internal/logger"
	"github.com/jemadeira/extrato/internal/normalize"
	"github.com/jemadeira/extrato/internal/ofx"
)

// ParseStep decodes every uploaded file into raw records. Per-file format
// and empty-input failures are isolated in the RunReport; the step only
// fails when no file at all produced records.
type ParseStep struct{}

func (s *ParseStep) Name() string { return "parse" }

func (s *ParseStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)

	for _, file := range state.Files {
		records, err := parseFile(file)
		if err != nil {
			log.Warn().Err(err).Str("file", file.Name).Msg("statement file rejected")
			state.Run.FileErrors = append(state.Run.FileErrors, FileError{File: file.Name, Err: err})
			continue
		}
		state.Raw = append(state.Raw, records...)
	}

	if len(state.Raw) == 0 {
		return fmt.Errorf("parse: %w", errAllFilesRejected)
	}

	state.Run.TotalParsed = len(state.Raw)
	state.Stage = StageParsed
	return nil
}

func parseFile(file File) ([]domain.RawRecord, error) {
	bank := file.Bank
	if bank == "" {
		detected, err := ofx.DetectBank(bytes.NewReader(file.Data), file.Name)
		if err != nil {
			return nil, err
		}
		bank = detected
	}

	parser, err := ofx.New(bank)
	if err != nil {
		return nil, err
	}
	return parser.Parse(bytes.NewReader(file.Data), file.Name)
}

// NormalizeStep converts raw records into canonical transactions. Bad
// records are skipped, audited and reported; they never abort the batch.
type NormalizeStep struct {
	Audit audit.Log
}

func (s *NormalizeStep) Name() string { return "normalize" }

func (s *NormalizeStep) Execute(ctx context.Context, state *State) error {
	res := normalize.Records(state.Raw)

	log := logger.FromContext(ctx)
	for _, nerr := range res.Errors {
		err := s.Audit.Record(audit.Entry{
			Kind:        audit.KindSkippedRecord,
			Description: nerr.Record.Field("MEMO"),
			Reasoning:   nerr.Error(),
			Flagged:     true,
		})
		if err != nil {
			log.Warn().Err(err).Str("file", nerr.Record.SourceFile).Msg("audit append failed")
		}
	}

	if len(res.Transactions) == 0 {
		return fmt.Errorf("normalize: no valid transactions after normalization (%d records skipped)", len(res.Errors))
	}

	state.Transactions = res.Transactions
	state.Raw = nil // raw records are discarded once normalized
	state.Run.SkippedRecords = res.Errors
	state.Run.BalanceDropped = res.BalanceDropped
	state.Run.TotalNormalized = len(res.Transactions)
	state.Stage = StageNormalized
	return nil
}

// ClassifyStep labels every transaction through the classifier adapter.
type ClassifyStep struct {
	Adapter *classify.Adapter
}

func (s *ClassifyStep) Name() string { return "classify" }

func (s *ClassifyStep) Execute(ctx context.Context, state *State) error {
	classified, err := s.Adapter.Classify(ctx, state.Transactions)
	if err != nil {
		return fmt.Errorf("classify: %w", err)
	}

	state.Transactions = classified
	for _, tx := range classified {
		switch tx.Source {
		case domain.SourceRule:
			state.Run.RuleCount++
		case domain.SourceAI:
			state.Run.AICount++
		case domain.SourceFallback:
			state.Run.FallbackCount++
		}
	}
	state.Stage = StageClassified
	return nil
}

// AggregateStep computes the category × period summaries. An error here
// means an upstream invariant broke and the run cannot continue.
type AggregateStep struct{}

func (s *AggregateStep) Name() string { return "aggregate" }

func (s *AggregateStep) Execute(ctx context.Context, state *State) error {
	report, err := aggregate.Transactions(state.Transactions)
	if err != nil {
		var aggErr *domain.AggregationError
		if errors.As(err, &aggErr) {
			return fmt.Errorf("aggregate: invariant breach: %w", err)
		}
		return fmt.Errorf("aggregate: %w", err)
	}

	state.Report = report
	state.Stage = StageAggregated
	return nil
}
