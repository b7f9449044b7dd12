// Package jobs defines the asynchronous unit of work for statement
// processing and the queue/store contracts it moves through.
package jobs

import (
	"context"
	"time"

	"github.com/jemadeira/extrato/internal/domain"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
)

// ProcessUploadJob asks the worker to run the full pipeline over one upload:
// a set of OFX files that belong together.
type ProcessUploadJob struct {
	JobID    string `json:"job_id"`
	UploadID string `json:"upload_id"`

	// Paths are the statement files on local disk.
	Paths []string `json:"paths"`
	// Bank optionally pins the variant for every file; empty means
	// auto-detect per file.
	Bank domain.Bank `json:"bank,omitempty"`

	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Handler processes one job. A non-nil error triggers the queue's retry
// policy.
type Handler func(ctx context.Context, job *ProcessUploadJob) error

// Store persists job state for status inspection.
type Store interface {
	SaveJob(ctx context.Context, job *ProcessUploadJob) error
	GetJob(ctx context.Context, jobID string) (*ProcessUploadJob, error)
	ListJobs(ctx context.Context) ([]*ProcessUploadJob, error)
}

// Publisher enqueues jobs.
type Publisher interface {
	PublishProcessUpload(ctx context.Context, job *ProcessUploadJob) error
	Close() error
}

// Consumer drains jobs into a handler.
type Consumer interface {
	Start(ctx context.Context, handler Handler) error
	Stop(ctx context.Context) error
}
