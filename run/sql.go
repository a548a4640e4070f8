package run

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"gorm.io/gorm"
)

// SQLStore implements Store and TurnStore using GORM. It works against both
// the sqlite and mysql dialects.
type SQLStore struct {
	db     *gorm.DB
	logger logger.Logger
}

// NewSQLStore creates a new GORM-backed run store.
func NewSQLStore(db *gorm.DB, log logger.Logger) *SQLStore {
	return &SQLStore{
		db:     db,
		logger: log,
	}
}

// Create creates a new run in the database.
func (s *SQLStore) Create(ctx context.Context, r *Run) error {
	if err := r.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		s.logger.Error(ctx, "failed to create run", map[string]interface{}{
			"error": err.Error(),
			"dir":   r.Dir,
		})
		return err
	}

	s.logger.Info(ctx, "run created", map[string]interface{}{
		"run_id": r.ID.String(),
		"dir":    r.Dir,
	})

	return nil
}

// GetByID retrieves a run by its ID.
func (s *SQLStore) GetByID(ctx context.Context, id uuid.UUID) (*Run, error) {
	var r Run
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		First(&r).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		s.logger.Error(ctx, "failed to get run by ID", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id.String(),
		})
		return nil, err
	}

	return &r, nil
}

// Update updates a run with the given setters.
func (s *SQLStore) Update(ctx context.Context, id uuid.UUID, setters ...UpdateSetter) error {
	r, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, setter := range setters {
		if err := setter(r); err != nil {
			return err
		}
	}

	if err := s.db.WithContext(ctx).Save(r).Error; err != nil {
		s.logger.Error(ctx, "failed to update run", map[string]interface{}{
			"error":  err.Error(),
			"run_id": id.String(),
		})
		return err
	}

	s.logger.Debug(ctx, "run updated", map[string]interface{}{
		"run_id": id.String(),
	})

	return nil
}

// List returns runs newest first.
func (s *SQLStore) List(ctx context.Context, limit, offset int) ([]*Run, error) {
	var runs []*Run
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&runs).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list runs", map[string]interface{}{
			"error":  err.Error(),
			"limit":  limit,
			"offset": offset,
		})
		return nil, err
	}

	return runs, nil
}

// Start marks a run as running.
func (s *SQLStore) Start(ctx context.Context, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r Run
		if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRunNotFound
			}
			return err
		}

		if err := r.Start(); err != nil {
			return err
		}

		return tx.Save(&r).Error
	})

	if err != nil {
		if !errors.Is(err, ErrRunNotFound) && !errors.Is(err, ErrRunAlreadyStarted) {
			s.logger.Error(ctx, "failed to start run", map[string]interface{}{
				"error":  err.Error(),
				"run_id": id.String(),
			})
		}
		return err
	}

	s.logger.Info(ctx, "run started", map[string]interface{}{
		"run_id": id.String(),
	})

	return nil
}

// Complete marks a run as finished with the given status and result.
func (s *SQLStore) Complete(ctx context.Context, id uuid.UUID, status Status, result JSONMap) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r Run
		if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRunNotFound
			}
			return err
		}

		if err := r.Complete(status, result); err != nil {
			return err
		}

		return tx.Save(&r).Error
	})

	if err != nil {
		if !errors.Is(err, ErrRunNotFound) && !errors.Is(err, ErrRunNotRunning) {
			s.logger.Error(ctx, "failed to complete run", map[string]interface{}{
				"error":  err.Error(),
				"run_id": id.String(),
				"status": string(status),
			})
		}
		return err
	}

	s.logger.Info(ctx, "run completed", map[string]interface{}{
		"run_id": id.String(),
		"status": string(status),
	})

	return nil
}

// Record inserts one turn. A second turn with the same index for the same
// run is rejected by the unique index.
func (s *SQLStore) Record(ctx context.Context, t *Turn) error {
	if err := t.Validate(); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(t).Error; err != nil {
		s.logger.Error(ctx, "failed to record turn", map[string]interface{}{
			"error":  err.Error(),
			"run_id": t.RunID.String(),
			"turn":   t.TurnIndex,
		})
		return err
	}

	return nil
}

// ListByRun returns a run's turns in turn order.
func (s *SQLStore) ListByRun(ctx context.Context, runID uuid.UUID) ([]*Turn, error) {
	var turns []*Turn
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("turn_index ASC").
		Find(&turns).Error

	if err != nil {
		s.logger.Error(ctx, "failed to list turns", map[string]interface{}{
			"error":  err.Error(),
			"run_id": runID.String(),
		})
		return nil, err
	}

	return turns, nil
}

// CountByRun returns the number of recorded turns for a run.
func (s *SQLStore) CountByRun(ctx context.Context, runID uuid.UUID) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&Turn{}).
		Where("run_id = ?", runID).
		Count(&count).Error

	if err != nil {
		s.logger.Error(ctx, "failed to count turns", map[string]interface{}{
			"error":  err.Error(),
			"run_id": runID.String(),
		})
		return 0, err
	}

	return int(count), nil
}
