package store

import (
	"context"
	"errors"

	"github.com/seantiz/stbuild/internal/model"
)

// ErrInvalidTransition is returned when a run status or workflow state
// transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// RunStats holds aggregate run statistics.
type RunStats struct {
	Total         int            `json:"total"`
	CountByStatus map[string]int `json:"count_by_status"`
	CountByTask   map[string]int `json:"count_by_task"`
	CountByHost   map[string]int `json:"count_by_host"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

// Store defines the persistence operations for runs and their state events.
type Store interface {
	CreateRun(ctx context.Context, r *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*model.Run, int, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	UpdateRun(ctx context.Context, r *model.Run) error
	AdvanceRunState(ctx context.Context, id, state, message string) (*model.Event, error)
	GetRunStats(ctx context.Context) (*RunStats, error)
	GetEvents(ctx context.Context, runID string) ([]model.Event, error)
	Close() error
}

// validStatusTransitions maps each run status to the statuses it may move to.
var validStatusTransitions = map[string]map[string]bool{
	model.StatusPending: {model.StatusRunning: true, model.StatusFailed: true},
	model.StatusRunning: {model.StatusCompleted: true, model.StatusFailed: true},
}

func validStatusTransition(from, to string) bool {
	if from == to {
		return true
	}
	return validStatusTransitions[from][to]
}

func isTerminal(status string) bool {
	return status == model.StatusCompleted || status == model.StatusFailed
}
