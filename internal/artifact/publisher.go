package artifact

import (
	"context"

	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/logging"
	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/repository"
	"gorm.io/gorm"
)

// Publisher writes Works and Units to a Store and reads them back.
type Publisher struct {
	store Store
	log   *logging.Logger
}

// NewPublisher returns a publisher over store.
func NewPublisher(store Store, log *logging.Logger) *Publisher {
	if log == nil {
		log = logging.Nop()
	}
	return &Publisher{store: store, log: log}
}

// Store returns the underlying store.
func (p *Publisher) Store() Store { return p.store }

// PublishWork writes the Work document.
func (p *Publisher) PublishWork(ctx context.Context, w *models.Work) error {
	data, err := EncodeWork(*w)
	if err != nil {
		return err
	}
	if err := p.store.Put(ctx, WorkKey(w.Slug), data); err != nil {
		return err
	}
	p.log.Debug("published work", "work", w.Slug, "status", w.Status)
	return nil
}

// PublishUnits writes one document per Unit.
func (p *Publisher) PublishUnits(ctx context.Context, w *models.Work, units []models.Unit) error {
	for _, u := range units {
		data, err := EncodeUnit(u)
		if err != nil {
			return err
		}
		if err := p.store.Put(ctx, UnitKey(w.Slug, u.Number), data); err != nil {
			return err
		}
		p.log.Debug("published unit", "work", w.Slug, "unit", u.Number)
	}
	return nil
}

// Import reads a Work and its Units back from the store. Units must be
// numbered contiguously from 1 and belong to the Work.
func (p *Publisher) Import(ctx context.Context, slug string) (*models.Work, []models.Unit, error) {
	const op = "artifact: import"
	data, err := p.store.Get(ctx, WorkKey(slug))
	if err != nil {
		return nil, nil, err
	}
	w, err := DecodeWork(data)
	if err != nil {
		return nil, nil, err
	}
	if w.Slug != slug {
		return nil, nil, errs.Validation(op, "document at %s describes %q", WorkKey(slug), w.Slug)
	}

	keys, err := p.store.List(ctx, UnitPrefix(slug))
	if err != nil {
		return nil, nil, err
	}
	units := make([]models.Unit, 0, len(keys))
	for i, key := range keys {
		data, err := p.store.Get(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		u, err := DecodeUnit(data)
		if err != nil {
			return nil, nil, errs.Validation(op, "%s: %v", key, err)
		}
		if u.WorkSlug != slug {
			return nil, nil, errs.Validation(op, "%s belongs to %q", key, u.WorkSlug)
		}
		if u.Number != i+1 {
			return nil, nil, errs.Validation(op, "%s: expected unit %d, found %d", key, i+1, u.Number)
		}
		units = append(units, u)
	}
	return &w, units, nil
}

// Restore inserts an imported Work and its Units into the database. The
// Work must not exist yet. Continuity state starts empty.
func Restore(ctx context.Context, db *gorm.DB, w *models.Work, units []models.Unit) error {
	status := w.Status
	defer func() { w.Status = status }()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		works := repository.NewWorks(tx)
		us := repository.NewUnits(tx)
		w.Status = models.StatusActive
		w.UnitCount = 0
		w.ClosingUnits = 0
		if _, err := works.Create(ctx, w); err != nil {
			return err
		}
		closing := 0
		for i := range units {
			u := units[i]
			u.ID = 0
			if _, err := us.Create(ctx, &u); err != nil {
				return err
			}
			if u.Kind != models.UnitRegular {
				closing++
			}
		}
		if err := works.RecordUnits(ctx, w.Slug, len(units), closing); err != nil {
			return err
		}
		for _, next := range restorePath(status) {
			if err := works.UpdateStatus(ctx, w.Slug, next); err != nil {
				return err
			}
		}
		return nil
	})
}

// restorePath is the sequence of transitions from active to status.
func restorePath(status string) []string {
	switch status {
	case models.StatusPaused:
		return []string{models.StatusPaused}
	case models.StatusCompletionReady:
		return []string{models.StatusCompletionReady}
	case models.StatusCompleted:
		return []string{models.StatusCompletionReady, models.StatusCompleted}
	}
	return nil
}
