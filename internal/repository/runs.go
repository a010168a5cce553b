package repository

import (
	"context"

	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
	"gorm.io/gorm"
)

// Runs stores the outcome of orchestrator runs.
type Runs struct {
	db *gorm.DB
}

// NewRuns returns a run repository backed by db.
func NewRuns(db *gorm.DB) *Runs {
	return &Runs{db: db}
}

// Record inserts a run record.
func (r *Runs) Record(ctx context.Context, rec *models.RunRecord) error {
	if rec.ID == "" {
		return errs.Validation("repository: record run", "run ID is required")
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return errs.Storage("repository: record run", err)
	}
	return nil
}

// List returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (r *Runs) List(ctx context.Context, limit int) ([]models.RunRecord, error) {
	q := r.db.WithContext(ctx).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.RunRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, errs.Storage("repository: list runs", err)
	}
	return out, nil
}

// ForWork returns the runs that acted on a Work, newest first.
func (r *Runs) ForWork(ctx context.Context, slug string, limit int) ([]models.RunRecord, error) {
	q := r.db.WithContext(ctx).Where("work_slug = ?", slug).Order("started_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []models.RunRecord
	if err := q.Find(&out).Error; err != nil {
		return nil, errs.Storage("repository: list runs for "+slug, err)
	}
	return out, nil
}
