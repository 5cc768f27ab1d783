package leveling

import (
	"context"
	"sync"
	"time"

	apperrors "virtual-trader/internal/errors"
)

// JobStatus reports the outcome of the most recent batch run.
type JobStatus struct {
	Running       bool         `json:"running"`
	LastStarted   time.Time    `json:"lastStarted,omitempty"`
	LastFinished  time.Time    `json:"lastFinished,omitempty"`
	LastResult    *BatchResult `json:"lastResult,omitempty"`
	LastError     string       `json:"lastError,omitempty"`
	CompletedRuns int          `json:"completedRuns"`
}

// Job wraps the batch evaluator so that only one pass runs at a time, from
// the scheduler or a manual trigger.
type Job struct {
	evaluator *Evaluator

	mu     sync.Mutex
	status JobStatus
}

// NewJob creates a level evaluation job.
func NewJob(evaluator *Evaluator) *Job {
	return &Job{evaluator: evaluator}
}

// Run performs one batch pass. It returns ErrJobRunning if a pass is
// already in progress.
func (j *Job) Run(ctx context.Context) (BatchResult, error) {
	j.mu.Lock()
	if j.status.Running {
		j.mu.Unlock()
		return BatchResult{}, apperrors.ErrJobRunning
	}
	j.status.Running = true
	j.status.LastStarted = time.Now().UTC()
	j.mu.Unlock()

	result, err := j.evaluator.EvaluateAllActiveUsers(ctx)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.status.Running = false
	j.status.LastFinished = time.Now().UTC()
	j.status.LastResult = &result
	j.status.LastError = ""
	if err != nil {
		j.status.LastError = err.Error()
	}
	j.status.CompletedRuns++
	return result, err
}

// Status returns a copy of the current job status.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.status
	if s.LastResult != nil {
		r := *s.LastResult
		s.LastResult = &r
	}
	return s
}
