package run

import (
	"context"

	"github.com/google/uuid"
)

type UpdateSetter func(r *Run) error

// Store persists runs.
type Store interface {
	Create(ctx context.Context, r *Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*Run, error)
	Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error
	List(ctx context.Context, limit, offset int) ([]*Run, error)
	Start(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, status Status, result JSONMap) error
}

// TurnStore persists the per-turn mirror of the execution log.
type TurnStore interface {
	Record(ctx context.Context, t *Turn) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*Turn, error)
	CountByRun(ctx context.Context, runID uuid.UUID) (int, error)
}
