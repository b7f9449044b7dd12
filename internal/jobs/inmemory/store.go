package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jemadeira/extrato/internal/jobs"
)

// Store is an in-memory job store, suitable for single-instance deployments
// and tests.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*jobs.ProcessUploadJob
}

func NewStore() *Store {
	return &Store{jobs: make(map[string]*jobs.ProcessUploadJob)}
}

func (s *Store) SaveJob(ctx context.Context, job *jobs.ProcessUploadJob) error {
	if job.JobID == "" {
		return fmt.Errorf("inmemory: job has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.JobID] = &copied
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.ProcessUploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("inmemory: job %s not found", jobID)
	}
	copied := *job
	return &copied, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]*jobs.ProcessUploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*jobs.ProcessUploadJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		copied := *job
		out = append(out, &copied)
	}
	return out, nil
}
