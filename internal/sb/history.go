package sb

import (
	"database/sql"
	"fmt"
	"time"
)

// Run statuses.
const (
	RunRunning = "running"
	RunSuccess = "success"
	RunError   = "error"
)

// Run is one recorded invocation of a backup, restore or upload.
type Run struct {
	ID          int64
	RunID       string
	Operation   string
	Schedule    string
	ObjectKey   string
	ContentHash string
	Size        int64
	Encrypted   bool
	Status      string
	Error       string
	StartedAt   time.Time
	FinishedAt  sql.NullTime
}

// History persists runs.
type History interface {
	// StartRun inserts run and returns its row ID.
	StartRun(run *Run) (int64, error)

	// FinishRun stores the outcome fields of run, matched by run.ID.
	FinishRun(run *Run) error

	// ListRuns returns up to limit runs, newest first.
	ListRuns(limit int) ([]*Run, error)
}

// GetHistory returns the most recent runs, newest first.
func (s *Service) GetHistory(limit int) ([]*Run, error) {
	runs, err := s.history.ListRuns(limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// record wraps fn in a history entry. fn fills in the outcome fields of run.
func (s *Service) record(operation, schedule string, fn func(run *Run) error) error {
	run := &Run{
		RunID:     s.idgen.New(),
		Operation: operation,
		Schedule:  schedule,
		Status:    RunRunning,
		StartedAt: s.clock.Now(),
	}
	id, err := s.history.StartRun(run)
	if err != nil {
		return fmt.Errorf("recording run start: %w", err)
	}
	run.ID = id

	runErr := fn(run)

	run.Status = RunSuccess
	if runErr != nil {
		run.Status = RunError
		run.Error = runErr.Error()
	}
	run.FinishedAt = sql.NullTime{Time: s.clock.Now(), Valid: true}
	if err := s.history.FinishRun(run); err != nil {
		if runErr != nil {
			s.logger.Warn("recording run outcome failed", "run", run.RunID, "error", err)
			return runErr
		}
		return fmt.Errorf("recording run outcome: %w", err)
	}
	return runErr
}
