// Package trace persists recorded runs of the task engine to SQLite.
package trace

import (
	"context"

	"github.com/me/cadence/pkg/model"
)

// Store defines the persistence layer for trace runs and their events.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *model.TraceRun) error
	FinishRun(ctx context.Context, run *model.TraceRun) error
	GetRun(ctx context.Context, id string) (*model.TraceRun, error)
	ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.TraceRun, int, error)

	// Events
	AppendEvents(ctx context.Context, events []model.TraceEvent) error
	ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]*model.TraceEvent, int, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
