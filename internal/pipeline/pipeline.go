// Package pipeline orchestrates one upload batch through the processing
// stages: parse the OFX files, normalize the records, classify the
// transactions and aggregate the summaries. Each upload is an independent,
// single-threaded batch job; only the classifier fans out internally.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jemadeira/extrato/internal/aggregate"
	"github.com/jemadeira/extrato/internal/audit"
	"github.com/jemadeira/extrato/internal/classify"
	"github.com/jemadeira/extrato/internal/config"
	"github.com/jemadeira/extrato/internal/domain"
	"github.com/jemadeira/extrato/internal/logger"
)

// Stage is the pipeline state machine position of an upload batch.
type Stage string

const (
	StageReceived   Stage = "received"
	StageParsed     Stage = "parsed"
	StageNormalized Stage = "normalized"
	StageClassified Stage = "classified"
	StageAggregated Stage = "aggregated"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// File is one uploaded statement. Bank may be left empty to auto-detect the
// variant from the file's signon metadata.
type File struct {
	Name string
	Bank domain.Bank
	Data []byte
}

// FileError reports a file that was rejected while its siblings continued.
type FileError struct {
	File string
	Err  error
}

// RunReport is the per-upload error and provenance summary. It is what makes
// the final output auditable: which files failed, which records were skipped
// and how many categories came from the fallback path.
type RunReport struct {
	Stage       Stage
	FailedStage Stage // set only when Stage == StageFailed

	FileErrors     []FileError
	SkippedRecords []*domain.NormalizationError
	BalanceDropped int

	TotalParsed     int
	TotalNormalized int

	RuleCount     int
	AICount       int
	FallbackCount int
}

// State is the shared state threaded through the pipeline steps.
type State struct {
	Files []File
	Stage Stage

	Raw          []domain.RawRecord
	Transactions []domain.Transaction
	Report       *aggregate.Report

	Run RunReport
}

// Step is a single stage of the ingestion pipeline.
type Step interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// Pipeline executes a sequence of steps in order, tracking the stage state
// machine. Recoverable problems are accumulated in the RunReport; a step
// error is unrecoverable and moves the batch to StageFailed.
type Pipeline struct {
	steps []Step
}

func NewPipeline(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// New builds the standard four-step pipeline from its collaborators.
func New(cfg config.Pipeline, reasoner classify.Reasoner, auditLog audit.Log) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline.New: %w", err)
	}
	adapter, err := classify.NewAdapter(cfg, reasoner, auditLog)
	if err != nil {
		return nil, fmt.Errorf("pipeline.New: %w", err)
	}
	return NewPipeline(
		&ParseStep{},
		&NormalizeStep{Audit: auditLog},
		&ClassifyStep{Adapter: adapter},
		&AggregateStep{},
	), nil
}

// Execute runs the batch to completion. The returned State always carries a
// final RunReport, including on failure.
func (p *Pipeline) Execute(ctx context.Context, files []File) (*State, error) {
	state := &State{Files: files, Stage: StageReceived}
	log := logger.FromContext(ctx)

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			fail(state)
			return state, err
		}
		if err := step.Execute(ctx, state); err != nil {
			log.Error().Err(err).Str("step", step.Name()).Msg("pipeline step failed")
			fail(state)
			return state, fmt.Errorf("pipeline: step %s: %w", step.Name(), err)
		}
		log.Debug().Str("step", step.Name()).Str("stage", string(state.Stage)).Msg("pipeline step done")
	}

	state.Stage = StageCompleted
	state.Run.Stage = StageCompleted
	return state, nil
}

// fail records the stage the batch was in when the unrecoverable error hit.
func fail(state *State) {
	state.Run.FailedStage = state.Stage
	state.Stage = StageFailed
	state.Run.Stage = StageFailed
}

// errAllFilesRejected is returned when not a single file yielded records.
var errAllFilesRejected = errors.New("no file produced any transaction records")
