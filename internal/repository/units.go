package repository

import (
	"context"
	"errors"
	"time"

	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
	"gorm.io/gorm"
)

// Units is the Unit repository.
type Units struct {
	db  *gorm.DB
	now func() time.Time
}

// NewUnits returns a Unit repository backed by db.
func NewUnits(db *gorm.DB, opts ...Option) *Units {
	o := buildOptions(opts)
	return &Units{db: db, now: o.now}
}

// WithTx returns a copy of the repository bound to tx.
func (r *Units) WithTx(tx *gorm.DB) *Units {
	return &Units{db: tx, now: r.now}
}

// Create inserts a Unit and returns its ID. The number must be exactly one
// past the latest; resubmitting an existing number fails as a duplicate.
func (r *Units) Create(ctx context.Context, u *models.Unit) (uint, error) {
	const op = "repository: create unit"
	if u.WorkSlug == "" {
		return 0, errs.Validation(op, "work slug is required")
	}
	if u.Number < 1 {
		return 0, errs.Validation(op, "unit number must be positive, got %d", u.Number)
	}
	if u.Title == "" {
		return 0, errs.Validation(op, "title is required")
	}
	if u.Body == "" {
		return 0, errs.Validation(op, "body is required")
	}
	if u.Kind == "" {
		u.Kind = models.UnitRegular
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var works int64
		if err := tx.Model(&models.Work{}).Where("slug = ?", u.WorkSlug).Count(&works).Error; err != nil {
			return errs.Storage(op, err)
		}
		if works == 0 {
			return errs.NotFound(op, "work not found: %s", u.WorkSlug)
		}

		var existing int64
		if err := tx.Model(&models.Unit{}).Where("work_slug = ? AND number = ?", u.WorkSlug, u.Number).Count(&existing).Error; err != nil {
			return errs.Storage(op, err)
		}
		if existing > 0 {
			return errs.Validation(op, "unit %d of %s already exists (duplicate)", u.Number, u.WorkSlug)
		}

		latest, err := latestNumber(tx, u.WorkSlug)
		if err != nil {
			return errs.Storage(op, err)
		}
		if u.Number != latest+1 {
			return errs.Validation(op, "unit %d of %s is not contiguous: next number is %d", u.Number, u.WorkSlug, latest+1)
		}

		now := r.now()
		if u.PublishedAt.IsZero() {
			u.PublishedAt = now
		}
		u.CreatedAt = now
		if err := tx.Create(u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.Validation(op, "unit %d of %s already exists (duplicate)", u.Number, u.WorkSlug)
			}
			return errs.Storage(op, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return u.ID, nil
}

// Get retrieves a Unit by work slug and number.
func (r *Units) Get(ctx context.Context, slug string, number int) (*models.Unit, error) {
	var u models.Unit
	if err := r.db.WithContext(ctx).Where("work_slug = ? AND number = ?", slug, number).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("repository: get unit", "unit not found: %s #%d", slug, number)
		}
		return nil, errs.Storage("repository: get unit", err)
	}
	return &u, nil
}

// List returns every Unit of a Work in number order.
func (r *Units) List(ctx context.Context, slug string) ([]models.Unit, error) {
	var units []models.Unit
	if err := r.db.WithContext(ctx).Where("work_slug = ?", slug).Order("number ASC").Find(&units).Error; err != nil {
		return nil, errs.Storage("repository: list units", err)
	}
	return units, nil
}

// Recent returns the last n Units of a Work in ascending number order.
func (r *Units) Recent(ctx context.Context, slug string, n int) ([]models.Unit, error) {
	if n <= 0 {
		return nil, nil
	}
	var units []models.Unit
	if err := r.db.WithContext(ctx).Where("work_slug = ?", slug).Order("number DESC").Limit(n).Find(&units).Error; err != nil {
		return nil, errs.Storage("repository: recent units", err)
	}
	for i, j := 0, len(units)-1; i < j; i, j = i+1, j-1 {
		units[i], units[j] = units[j], units[i]
	}
	return units, nil
}

// LatestNumber returns the highest unit number of a Work, 0 when empty.
func (r *Units) LatestNumber(ctx context.Context, slug string) (int, error) {
	n, err := latestNumber(r.db.WithContext(ctx), slug)
	if err != nil {
		return 0, errs.Storage("repository: latest unit number", err)
	}
	return n, nil
}

// Count returns the number of Units in a Work.
func (r *Units) Count(ctx context.Context, slug string) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Unit{}).Where("work_slug = ?", slug).Count(&n).Error; err != nil {
		return 0, errs.Storage("repository: count units", err)
	}
	return int(n), nil
}

// Delete removes a Unit by ID. Only the latest Unit of a Work can be
// removed so numbering stays contiguous.
func (r *Units) Delete(ctx context.Context, id uint) error {
	const op = "repository: delete unit"
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u models.Unit
		if err := tx.Where("id = ?", id).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.NotFound(op, "unit not found: %d", id)
			}
			return errs.Storage(op, err)
		}
		latest, err := latestNumber(tx, u.WorkSlug)
		if err != nil {
			return errs.Storage(op, err)
		}
		if u.Number != latest {
			return errs.Domain(op, "only the latest unit (%d) of %s can be deleted, not %d", latest, u.WorkSlug, u.Number)
		}
		if err := tx.Delete(&u).Error; err != nil {
			return errs.Storage(op, err)
		}
		if err := rollbackContinuity(tx, u.WorkSlug, u.Number); err != nil {
			return errs.Storage(op, err)
		}
		closing := 0
		if u.Kind != models.UnitRegular {
			closing = 1
		}
		err = tx.Model(&models.Work{}).Where("slug = ?", u.WorkSlug).Updates(map[string]interface{}{
			"unit_count":    gorm.Expr("unit_count - 1"),
			"closing_units": gorm.Expr("closing_units - ?", closing),
			"updated_at":    r.now(),
		}).Error
		if err != nil {
			return errs.Storage(op, err)
		}
		return nil
	})
}

func latestNumber(db *gorm.DB, slug string) (int, error) {
	var latest int
	err := db.Model(&models.Unit{}).
		Select("COALESCE(MAX(number), 0)").
		Where("work_slug = ?", slug).
		Scan(&latest).Error
	return latest, err
}

// rollbackContinuity removes the continuity records a deleted Unit added
// and rewinds the story state to the Unit before it. Attribute changes the
// Unit made to surviving characters are not reverted.
func rollbackContinuity(tx *gorm.DB, slug string, number int) error {
	for _, q := range []struct {
		model  interface{}
		column string
	}{
		{&models.Character{}, "introduced_in"},
		{&models.WorldRule{}, "introduced_in"},
		{&models.EstablishedFact{}, "unit_number"},
		{&models.PlotThread{}, "opened_in"},
		{&models.Checkpoint{}, "unit_number"},
	} {
		if err := tx.Where("work_slug = ? AND "+q.column+" >= ?", slug, number).Delete(q.model).Error; err != nil {
			return err
		}
	}
	err := tx.Model(&models.PlotThread{}).
		Where("work_slug = ? AND resolved_in >= ?", slug, number).
		Update("resolved_in", nil).Error
	if err != nil {
		return err
	}
	return tx.Model(&models.StoryState{}).
		Where("work_slug = ? AND last_unit >= ?", slug, number).
		Update("last_unit", number-1).Error
}
