package continuity

import (
	"context"

	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// load reads a Work's continuity rows into a fresh State.
func load(ctx context.Context, db *gorm.DB, slug string) (*State, error) {
	const op = "continuity: load"
	db = db.WithContext(ctx)
	var (
		chars   []models.Character
		rules   []models.WorldRule
		facts   []models.EstablishedFact
		threads []models.PlotThread
		checks  []models.Checkpoint
		stories []models.StoryState
	)
	queries := []struct {
		dest  interface{}
		order string
	}{
		{&chars, "introduced_in ASC, created_at ASC, id ASC"},
		{&rules, "id ASC"},
		{&facts, "id ASC"},
		{&threads, "id ASC"},
		{&checks, "unit_number ASC, id ASC"},
		{&stories, "work_slug ASC"},
	}
	for _, q := range queries {
		if err := db.Where("work_slug = ?", slug).Order(q.order).Find(q.dest).Error; err != nil {
			return nil, errs.Storage(op, err)
		}
	}
	s := NewState(slug)
	var story *models.StoryState
	if len(stories) > 0 {
		story = &stories[0]
	}
	if err := s.loadModels(chars, rules, facts, threads, checks, story); err != nil {
		return nil, errs.Storage(op+" "+slug, err)
	}
	return s, nil
}

// save writes every change made since the state was loaded or last saved.
func (s *State) save(ctx context.Context, tx *gorm.DB) error {
	const op = "continuity: save"
	tx = tx.WithContext(ctx)

	for _, id := range s.charOrder {
		if !s.dirtyChars[id] {
			continue
		}
		p := s.chars[id]
		m := models.Character{
			ID:            p.ID,
			WorkSlug:      s.WorkSlug,
			Name:          p.Name,
			Aliases:       encodeList(p.Aliases),
			Role:          p.Role,
			Abilities:     encodeList(p.Abilities),
			Traits:        encodeList(p.Traits),
			Relationships: encode(p.Relationships),
			Location:      p.Location,
			Emotion:       p.Emotion,
			PowerLevel:    p.PowerLevel,
			Deceased:      p.Deceased,
			Developments:  p.Developments,
			IntroducedIn:  p.IntroducedIn,
			LastSeenIn:    p.LastSeenIn,
		}
		var err error
		if s.newChars[id] {
			err = tx.Create(&m).Error
		} else {
			err = update(tx, &m)
		}
		if err != nil {
			return errs.Storage(op+" character "+p.Name, err)
		}
	}

	for _, key := range s.ruleOrder {
		if !s.dirtyRules[key] {
			continue
		}
		r := s.rules[key]
		m := models.WorldRule{
			ID:           r.id,
			WorkSlug:     s.WorkSlug,
			Key:          r.Key,
			Category:     r.Category,
			Statement:    r.Statement,
			Forbids:      encodeList(r.Forbids),
			Amendable:    r.Amendable,
			IntroducedIn: r.IntroducedIn,
		}
		var err error
		if r.id == 0 {
			err = tx.Create(&m).Error
			r.id = m.ID
		} else {
			err = update(tx, &m)
		}
		if err != nil {
			return errs.Storage(op+" rule "+key, err)
		}
	}

	for _, f := range s.Facts[s.savedFacts:] {
		m := models.EstablishedFact{WorkSlug: s.WorkSlug, RuleKey: f.RuleKey, Statement: f.Statement, UnitNumber: f.UnitNumber}
		if err := tx.Create(&m).Error; err != nil {
			return errs.Storage(op+" fact", err)
		}
	}

	for _, key := range s.threadOrd {
		if !s.dirtyThreads[key] {
			continue
		}
		t := s.threads[key]
		m := models.PlotThread{
			ID:           t.id,
			WorkSlug:     s.WorkSlug,
			Key:          t.Key,
			Kind:         t.Kind,
			Description:  t.Description,
			Participants: encodeList(t.Participants),
			OpenedIn:     t.OpenedIn,
		}
		if t.ResolvedIn > 0 {
			resolved := t.ResolvedIn
			m.ResolvedIn = &resolved
		}
		var err error
		if t.id == 0 {
			err = tx.Create(&m).Error
			t.id = m.ID
		} else {
			err = update(tx, &m)
		}
		if err != nil {
			return errs.Storage(op+" thread "+key, err)
		}
	}

	for _, c := range s.Checkpoints[s.savedChecks:] {
		m := models.Checkpoint{
			WorkSlug:     s.WorkSlug,
			UnitNumber:   c.UnitNumber,
			Event:        c.Event,
			Participants: encodeList(c.Participants),
			Location:     c.Location,
			StoryDay:     c.StoryDay,
			Significance: c.Significance,
		}
		if err := tx.Create(&m).Error; err != nil {
			return errs.Storage(op+" checkpoint", err)
		}
	}

	story := models.StoryState{
		WorkSlug:    s.WorkSlug,
		ArcStage:    s.ArcStage,
		Cliffhanger: s.Cliffhanger,
		LastEnding:  s.LastEnding,
		LastUnit:    s.LastUnit,
		StoryDay:    s.StoryDay,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "work_slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"arc_stage", "cliffhanger", "last_ending", "last_unit", "story_day", "updated_at"}),
	}).Create(&story).Error
	if err != nil {
		return errs.Storage(op+" story state", err)
	}

	s.markClean()
	return nil
}

// update rewrites every column of an existing row except created_at.
func update(tx *gorm.DB, model interface{}) error {
	return tx.Model(model).Select("*").Omit("created_at").Updates(model).Error
}
