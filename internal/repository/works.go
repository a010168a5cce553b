// Package repository provides the storage contracts over Works and Units.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SlugPattern is the accepted Work slug format.
var SlugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidTransitions maps each Work status to its valid next statuses.
var ValidTransitions = map[string][]string{
	models.StatusActive:          {models.StatusCompletionReady, models.StatusPaused},
	models.StatusCompletionReady: {models.StatusCompleted},
	models.StatusPaused:          {models.StatusActive},
}

// WorkSummary is the listing view of a Work.
type WorkSummary struct {
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	UnitCount    int       `json:"unit_count"`
	PlannedUnits int       `json:"planned_units"`
	Tags         []string  `json:"tags"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WorkProgress is a Work's position against its planned length.
type WorkProgress struct {
	WorkSummary
	LatestNumber int     `json:"latest_number"`
	ClosingUnits int     `json:"closing_units"`
	Ratio        float64 `json:"ratio"`
	Percent      float64 `json:"percent"`
}

// Works is the Work repository.
type Works struct {
	db  *gorm.DB
	now func() time.Time
}

// Option configures a repository.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for updated_at stamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// NewWorks returns a Work repository backed by db.
func NewWorks(db *gorm.DB, opts ...Option) *Works {
	o := buildOptions(opts)
	return &Works{db: db, now: o.now}
}

// WithTx returns a copy of the repository bound to tx.
func (r *Works) WithTx(tx *gorm.DB) *Works {
	return &Works{db: tx, now: r.now}
}

// ListActive returns Works that are active or completion-ready, by slug.
func (r *Works) ListActive(ctx context.Context) ([]WorkSummary, error) {
	var works []models.Work
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{models.StatusActive, models.StatusCompletionReady}).
		Order("slug ASC").
		Find(&works).Error
	if err != nil {
		return nil, errs.Storage("repository: list active works", err)
	}
	if err := checkTags("repository: list active works", works...); err != nil {
		return nil, err
	}
	return summarize(works), nil
}

// List returns Works with the given status, or all Works when status is empty.
func (r *Works) List(ctx context.Context, status string) ([]models.Work, error) {
	q := r.db.WithContext(ctx).Model(&models.Work{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var works []models.Work
	if err := q.Order("slug ASC").Find(&works).Error; err != nil {
		return nil, errs.Storage("repository: list works", err)
	}
	if err := checkTags("repository: list works", works...); err != nil {
		return nil, err
	}
	return works, nil
}

// Get retrieves a Work by slug.
func (r *Works) Get(ctx context.Context, slug string) (*models.Work, error) {
	var w models.Work
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).First(&w).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.NotFound("repository: get work", "work not found: %s", slug)
		}
		return nil, errs.Storage("repository: get work "+slug, err)
	}
	if err := checkTags("repository: get work "+slug, w); err != nil {
		return nil, err
	}
	return &w, nil
}

// Exists reports whether a Work with slug exists.
func (r *Works) Exists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Work{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, errs.Storage("repository: check work "+slug, err)
	}
	return count > 0, nil
}

// GetProgress returns unit counts and completion ratio for a Work.
func (r *Works) GetProgress(ctx context.Context, slug string) (*WorkProgress, error) {
	w, err := r.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	var stats struct {
		Count  int64
		Latest int
	}
	err = r.db.WithContext(ctx).Model(&models.Unit{}).
		Select("COUNT(*) AS count, COALESCE(MAX(number), 0) AS latest").
		Where("work_slug = ?", slug).
		Scan(&stats).Error
	if err != nil {
		return nil, errs.Storage("repository: progress "+slug, err)
	}

	p := &WorkProgress{
		WorkSummary:  summarize([]models.Work{*w})[0],
		LatestNumber: stats.Latest,
		ClosingUnits: w.ClosingUnits,
	}
	p.UnitCount = int(stats.Count)
	if w.PlannedUnits > 0 {
		p.Ratio = float64(stats.Count) / float64(w.PlannedUnits)
		p.Percent = p.Ratio * 100
		if p.Percent > 100 {
			p.Percent = 100
		}
	}
	return p, nil
}

// Create inserts a new Work and returns its slug. A duplicate slug is a
// validation error.
func (r *Works) Create(ctx context.Context, w *models.Work) (string, error) {
	const op = "repository: create work"
	if !SlugPattern.MatchString(w.Slug) {
		return "", errs.Validation(op, "invalid slug %q", w.Slug)
	}
	if w.Title == "" {
		return "", errs.Validation(op, "title is required")
	}
	if w.PlannedUnits < 0 {
		return "", errs.Validation(op, "planned units must not be negative")
	}
	if w.Status == "" {
		w.Status = models.StatusActive
	}
	if w.Status != models.StatusActive {
		return "", errs.Validation(op, "new works must be active, got %q", w.Status)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Work{}).Where("slug = ?", w.Slug).Count(&count).Error; err != nil {
			return errs.Storage(op, err)
		}
		if count > 0 {
			return errs.Validation(op, "work %q already exists (duplicate)", w.Slug)
		}
		now := r.now()
		w.CreatedAt = now
		w.UpdatedAt = now
		if err := tx.Create(w).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errs.Validation(op, "work %q already exists (duplicate)", w.Slug)
			}
			return errs.Storage(op, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return w.Slug, nil
}

// UpdateStatus moves a Work to a new status. Transitions are validated
// against ValidTransitions; a Work already in status is a DomainError.
func (r *Works) UpdateStatus(ctx context.Context, slug, status string) error {
	const op = "repository: update status"
	w, err := r.Get(ctx, slug)
	if err != nil {
		return err
	}
	if w.Status == status {
		return errs.Domain(op, "work %s is already %s", slug, status)
	}
	if !isValidTransition(w.Status, status) {
		return errs.Domain(op, "invalid status transition for %s from %q to %q; valid transitions: %v",
			slug, w.Status, status, ValidTransitions[w.Status])
	}

	now := r.now()
	updates := map[string]interface{}{"status": status, "updated_at": now}
	if status == models.StatusCompleted {
		updates["completed_at"] = now
	}
	if err := r.db.WithContext(ctx).Model(&models.Work{}).Where("slug = ?", slug).Updates(updates).Error; err != nil {
		return errs.Storage(op, err)
	}
	return nil
}

// RecordUnits bumps the unit counters and last-update stamp after Units
// are accepted.
func (r *Works) RecordUnits(ctx context.Context, slug string, added, closing int) error {
	res := r.db.WithContext(ctx).Model(&models.Work{}).Where("slug = ?", slug).Updates(map[string]interface{}{
		"unit_count":    gorm.Expr("unit_count + ?", added),
		"closing_units": gorm.Expr("closing_units + ?", closing),
		"updated_at":    r.now(),
	})
	if res.Error != nil {
		return errs.Storage("repository: record units", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.NotFound("repository: record units", "work not found: %s", slug)
	}
	return nil
}

// Delete removes a Work with its Units and continuity records.
func (r *Works) Delete(ctx context.Context, slug string) error {
	const op = "repository: delete work"
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{
			&models.Unit{}, &models.Character{}, &models.WorldRule{}, &models.EstablishedFact{},
			&models.PlotThread{}, &models.Checkpoint{}, &models.StoryState{},
		} {
			if err := tx.Where("work_slug = ?", slug).Delete(m).Error; err != nil {
				return errs.Storage(op, err)
			}
		}
		res := tx.Where("slug = ?", slug).Delete(&models.Work{})
		if res.Error != nil {
			return errs.Storage(op, res.Error)
		}
		if res.RowsAffected == 0 {
			return errs.NotFound(op, "work not found: %s", slug)
		}
		return nil
	})
}

// Count returns the number of Works with the given statuses, or all Works
// when none are given.
func (r *Works) Count(ctx context.Context, statuses ...string) (int, error) {
	q := r.db.WithContext(ctx).Model(&models.Work{})
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, errs.Storage("repository: count works", err)
	}
	return int(n), nil
}

// ConceptUse is the genre, theme, and variant a Work was created with.
type ConceptUse struct {
	Slug    string
	Genre   string
	Theme   string
	Variant string
}

// Concepts lists the concept of every Work, including completed ones.
func (r *Works) Concepts(ctx context.Context) ([]ConceptUse, error) {
	var out []ConceptUse
	err := r.db.WithContext(ctx).Model(&models.Work{}).
		Select("slug, genre, theme, variant").
		Order("slug ASC").
		Scan(&out).Error
	if err != nil {
		return nil, errs.Storage("repository: list concepts", err)
	}
	return out, nil
}

// isValidTransition checks whether a status transition is allowed.
func isValidTransition(from, to string) bool {
	for _, v := range ValidTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}

// DecodeTags decodes a Work's tag column.
func DecodeTags(w models.Work) ([]string, error) {
	var tags []string
	if len(w.Tags) > 0 {
		if err := json.Unmarshal(w.Tags, &tags); err != nil {
			return nil, fmt.Errorf("work %s: decode tags: %w", w.Slug, err)
		}
	}
	return tags, nil
}

// Tags returns a Work's tags. Works read through this package have
// already had their tags checked, so a decode failure yields nil.
func Tags(w models.Work) []string {
	tags, err := DecodeTags(w)
	if err != nil {
		return nil
	}
	return tags
}

// checkTags fails closed on a corrupted tag column.
func checkTags(op string, works ...models.Work) error {
	for _, w := range works {
		if _, err := DecodeTags(w); err != nil {
			return errs.Storage(op, err)
		}
	}
	return nil
}

// EncodeTags encodes tags for a Work's tag column.
func EncodeTags(tags []string) datatypes.JSON {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return datatypes.JSON(data)
}

func summarize(works []models.Work) []WorkSummary {
	out := make([]WorkSummary, len(works))
	for i, w := range works {
		out[i] = WorkSummary{
			Slug:         w.Slug,
			Title:        w.Title,
			Status:       w.Status,
			UnitCount:    w.UnitCount,
			PlannedUnits: w.PlannedUnits,
			Tags:         Tags(w),
			UpdatedAt:    w.UpdatedAt,
		}
	}
	return out
}
