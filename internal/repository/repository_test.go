package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/quill/internal/db"
	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func fixedClock(ts time.Time) Option {
	return WithClock(func() time.Time { return ts })
}

func mustCreateWork(t *testing.T, works *Works, slug string, planned int) {
	t.Helper()
	_, err := works.Create(context.Background(), &models.Work{Slug: slug, Title: strings.ToUpper(slug), PlannedUnits: planned})
	if err != nil {
		t.Fatalf("create work %s: %v", slug, err)
	}
}

func unit(slug string, n int) *models.Unit {
	return &models.Unit{WorkSlug: slug, Number: n, Title: "Part", Body: "Once upon a time.", WordCount: 4}
}

func TestWorksCreate_Success(t *testing.T) {
	gdb := testDB(t)
	works := NewWorks(gdb)
	ctx := context.Background()

	slug, err := works.Create(ctx, &models.Work{Slug: "ember-road", Title: "Ember Road", PlannedUnits: 20, Tags: EncodeTags([]string{"fantasy"})})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if slug != "ember-road" {
		t.Errorf("slug = %q", slug)
	}
	w, err := works.Get(ctx, "ember-road")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if w.Status != models.StatusActive {
		t.Errorf("Status = %q, want active", w.Status)
	}
	if tags := Tags(*w); len(tags) != 1 || tags[0] != "fantasy" {
		t.Errorf("Tags = %v", tags)
	}
}

func TestWorksCreate_Validation(t *testing.T) {
	works := NewWorks(testDB(t))
	tests := []struct {
		name string
		work models.Work
		want string
	}{
		{"bad slug", models.Work{Slug: "Ember Road", Title: "x"}, "invalid slug"},
		{"trailing dash", models.Work{Slug: "ember-", Title: "x"}, "invalid slug"},
		{"no title", models.Work{Slug: "ember"}, "title is required"},
		{"negative plan", models.Work{Slug: "ember", Title: "x", PlannedUnits: -1}, "planned units"},
		{"not active", models.Work{Slug: "ember", Title: "x", Status: models.StatusCompleted}, "must be active"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := tt.work
			_, err := works.Create(context.Background(), &w)
			if !errs.Is(err, errs.KindValidation) {
				t.Fatalf("err = %v, want validation error", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want to contain %q", err.Error(), tt.want)
			}
		})
	}
}

func TestWorksCreate_Duplicate(t *testing.T) {
	works := NewWorks(testDB(t))
	mustCreateWork(t, works, "ember-road", 10)

	_, err := works.Create(context.Background(), &models.Work{Slug: "ember-road", Title: "Again"})
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
	if !strings.Contains(err.Error(), "already exists") {
		t.Errorf("err = %q, want already exists", err.Error())
	}
}

func TestWorks_CorruptedTagsFailClosed(t *testing.T) {
	gdb := testDB(t)
	works := NewWorks(gdb)
	ctx := context.Background()
	mustCreateWork(t, works, "ember", 5)
	if err := gdb.Exec("UPDATE works SET tags = ? WHERE slug = ?", "{broken", "ember").Error; err != nil {
		t.Fatal(err)
	}

	if _, err := works.Get(ctx, "ember"); !errs.Is(err, errs.KindStorage) || !strings.Contains(err.Error(), "decode tags") {
		t.Errorf("Get err = %v, want storage error", err)
	}
	if _, err := works.List(ctx, ""); !errs.Is(err, errs.KindStorage) {
		t.Errorf("List err = %v, want storage error", err)
	}
	if _, err := works.ListActive(ctx); !errs.Is(err, errs.KindStorage) {
		t.Errorf("ListActive err = %v, want storage error", err)
	}
	if _, err := DecodeTags(models.Work{Slug: "x", Tags: []byte("[1")}); err == nil {
		t.Error("DecodeTags should fail on malformed JSON")
	}
}

func TestWorksGet_NotFound(t *testing.T) {
	works := NewWorks(testDB(t))
	_, err := works.Get(context.Background(), "ghost")
	if !errs.Is(err, errs.KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestWorksListActive(t *testing.T) {
	gdb := testDB(t)
	works := NewWorks(gdb)
	ctx := context.Background()
	for _, slug := range []string{"cobalt", "amber", "brine", "dune"} {
		mustCreateWork(t, works, slug, 10)
	}
	if err := works.UpdateStatus(ctx, "brine", models.StatusPaused); err != nil {
		t.Fatal(err)
	}
	if err := works.UpdateStatus(ctx, "dune", models.StatusCompletionReady); err != nil {
		t.Fatal(err)
	}

	active, err := works.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	var slugs []string
	for _, w := range active {
		slugs = append(slugs, w.Slug)
	}
	if strings.Join(slugs, ",") != "amber,cobalt,dune" {
		t.Errorf("active = %v, want amber,cobalt,dune", slugs)
	}

	n, err := works.Count(ctx, models.StatusActive, models.StatusCompletionReady)
	if err != nil || n != 3 {
		t.Errorf("Count = %d, %v; want 3", n, err)
	}
}

func TestWorksUpdateStatus_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		path    []string
		wantErr bool
	}{
		{"active to ready to completed", []string{models.StatusCompletionReady, models.StatusCompleted}, false},
		{"pause and resume", []string{models.StatusPaused, models.StatusActive}, false},
		{"active to completed skips ready", []string{models.StatusCompleted}, true},
		{"completed is terminal", []string{models.StatusCompletionReady, models.StatusCompleted, models.StatusActive}, true},
		{"ready cannot go back", []string{models.StatusCompletionReady, models.StatusActive}, true},
		{"pausing twice", []string{models.StatusPaused, models.StatusPaused}, true},
		{"active to active", []string{models.StatusActive}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			works := NewWorks(testDB(t))
			mustCreateWork(t, works, "ember", 5)
			var err error
			for _, s := range tt.path {
				if err = works.UpdateStatus(context.Background(), "ember", s); err != nil {
					break
				}
			}
			if tt.wantErr {
				if !errs.Is(err, errs.KindDomain) {
					t.Errorf("err = %v, want domain error", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWorksUpdateStatus_CompletedAt(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	works := NewWorks(testDB(t), fixedClock(ts))
	ctx := context.Background()
	mustCreateWork(t, works, "ember", 5)
	_ = works.UpdateStatus(ctx, "ember", models.StatusCompletionReady)
	if err := works.UpdateStatus(ctx, "ember", models.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	w, _ := works.Get(ctx, "ember")
	if w.CompletedAt == nil || !w.CompletedAt.Equal(ts) {
		t.Errorf("CompletedAt = %v, want %v", w.CompletedAt, ts)
	}
}

func TestUnitsCreate_Contiguous(t *testing.T) {
	gdb := testDB(t)
	works, units := NewWorks(gdb), NewUnits(gdb)
	ctx := context.Background()
	mustCreateWork(t, works, "ember", 10)

	for n := 1; n <= 3; n++ {
		if _, err := units.Create(ctx, unit("ember", n)); err != nil {
			t.Fatalf("create unit %d: %v", n, err)
		}
	}

	_, err := units.Create(ctx, unit("ember", 5))
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("unit 5 before 4: err = %v, want validation error", err)
	}
	if !strings.Contains(err.Error(), "not contiguous") {
		t.Errorf("err = %q", err.Error())
	}

	list, err := units.List(ctx, "ember")
	if err != nil {
		t.Fatal(err)
	}
	for i, u := range list {
		if u.Number != i+1 {
			t.Errorf("units[%d].Number = %d, want %d", i, u.Number, i+1)
		}
	}
	latest, _ := units.LatestNumber(ctx, "ember")
	count, _ := units.Count(ctx, "ember")
	if latest != 3 || count != 3 {
		t.Errorf("latest=%d count=%d, want 3/3", latest, count)
	}
}

func TestUnitsCreate_DuplicateIsRejected(t *testing.T) {
	gdb := testDB(t)
	works, units := NewWorks(gdb), NewUnits(gdb)
	ctx := context.Background()
	mustCreateWork(t, works, "ember", 10)
	for n := 1; n <= 4; n++ {
		if _, err := units.Create(ctx, unit("ember", n)); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := units.Create(ctx, unit("ember", 5)); err != nil {
		t.Fatalf("first unit 5: %v", err)
	}
	_, err := units.Create(ctx, unit("ember", 5))
	if !errs.Is(err, errs.KindValidation) {
		t.Fatalf("second unit 5: err = %v, want validation error", err)
	}
	if !strings.Contains(err.Error(), "already exists") || !strings.Contains(err.Error(), "duplicate") {
		t.Errorf("err = %q, want already exists (duplicate)", err.Error())
	}

	var n int64
	gdb.Model(&models.Unit{}).Where("work_slug = ? AND number = ?", "ember", 5).Count(&n)
	if n != 1 {
		t.Errorf("unit 5 rows = %d, want exactly 1", n)
	}
}

func TestUnitsCreate_Validation(t *testing.T) {
	gdb := testDB(t)
	works, units := NewWorks(gdb), NewUnits(gdb)
	mustCreateWork(t, works, "ember", 10)
	ctx := context.Background()

	tests := []struct {
		name string
		unit models.Unit
		kind errs.Kind
	}{
		{"zero number", models.Unit{WorkSlug: "ember", Number: 0, Title: "t", Body: "b"}, errs.KindValidation},
		{"no title", models.Unit{WorkSlug: "ember", Number: 1, Body: "b"}, errs.KindValidation},
		{"no body", models.Unit{WorkSlug: "ember", Number: 1, Title: "t"}, errs.KindValidation},
		{"unknown work", models.Unit{WorkSlug: "ghost", Number: 1, Title: "t", Body: "b"}, errs.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := tt.unit
			_, err := units.Create(ctx, &u)
			if errs.KindOf(err) != tt.kind {
				t.Errorf("err = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestUnitsRecent(t *testing.T) {
	gdb := testDB(t)
	works, units := NewWorks(gdb), NewUnits(gdb)
	ctx := context.Background()
	mustCreateWork(t, works, "ember", 10)
	for n := 1; n <= 6; n++ {
		if _, err := units.Create(ctx, unit("ember", n)); err != nil {
			t.Fatal(err)
		}
	}
	recent, err := units.Recent(ctx, "ember", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 || recent[0].Number != 4 || recent[2].Number != 6 {
		t.Errorf("Recent(3) numbers = %v", numbers(recent))
	}
	if r, _ := units.Recent(ctx, "ember", 0); r != nil {
		t.Errorf("Recent(0) = %v, want nil", r)
	}
}

func TestUnitsDelete_OnlyLatest(t *testing.T) {
	gdb := testDB(t)
	works, units := NewWorks(gdb), NewUnits(gdb)
	ctx := context.Background()
	mustCreateWork(t, works, "ember", 10)
	var ids []uint
	for n := 1; n <= 3; n++ {
		id, err := units.Create(ctx, unit("ember", n))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}
	if err := works.RecordUnits(ctx, "ember", 3, 0); err != nil {
		t.Fatal(err)
	}

	if err := units.Delete(ctx, ids[0]); !errs.Is(err, errs.KindDomain) {
		t.Errorf("delete unit 1: err = %v, want domain error", err)
	}
	if err := units.Delete(ctx, ids[2]); err != nil {
		t.Fatalf("delete latest: %v", err)
	}
	if err := units.Delete(ctx, 9999); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("delete missing: err = %v, want not found", err)
	}
	w, _ := works.Get(ctx, "ember")
	if w.UnitCount != 2 {
		t.Errorf("UnitCount = %d, want 2", w.UnitCount)
	}
	if _, err := units.Create(ctx, unit("ember", 3)); err != nil {
		t.Errorf("recreate unit 3: %v", err)
	}
}

func TestWorksGetProgress(t *testing.T) {
	gdb := testDB(t)
	works, units := NewWorks(gdb), NewUnits(gdb)
	ctx := context.Background()
	mustCreateWork(t, works, "ember", 8)
	for n := 1; n <= 2; n++ {
		if _, err := units.Create(ctx, unit("ember", n)); err != nil {
			t.Fatal(err)
		}
	}
	p, err := works.GetProgress(ctx, "ember")
	if err != nil {
		t.Fatal(err)
	}
	if p.UnitCount != 2 || p.LatestNumber != 2 {
		t.Errorf("progress = %+v", p)
	}
	if p.Percent != 25 {
		t.Errorf("Percent = %v, want 25", p.Percent)
	}
}

func TestWorksRecordUnits(t *testing.T) {
	ts := time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)
	gdb := testDB(t)
	works := NewWorks(gdb, fixedClock(ts))
	ctx := context.Background()
	mustCreateWork(t, works, "ember", 8)

	if err := works.RecordUnits(ctx, "ember", 2, 1); err != nil {
		t.Fatal(err)
	}
	w, _ := works.Get(ctx, "ember")
	if w.UnitCount != 2 || w.ClosingUnits != 1 {
		t.Errorf("counts = %d/%d, want 2/1", w.UnitCount, w.ClosingUnits)
	}
	if !w.UpdatedAt.Equal(ts) {
		t.Errorf("UpdatedAt = %v, want %v", w.UpdatedAt, ts)
	}
	if err := works.RecordUnits(ctx, "ghost", 1, 0); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestWorksDelete(t *testing.T) {
	gdb := testDB(t)
	works, units := NewWorks(gdb), NewUnits(gdb)
	ctx := context.Background()
	mustCreateWork(t, works, "ember", 8)
	if _, err := units.Create(ctx, unit("ember", 1)); err != nil {
		t.Fatal(err)
	}
	if err := works.Delete(ctx, "ember"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := works.Exists(ctx, "ember"); ok {
		t.Error("work still exists")
	}
	if n, _ := units.Count(ctx, "ember"); n != 0 {
		t.Errorf("units left = %d", n)
	}
	if err := works.Delete(ctx, "ember"); !errs.Is(err, errs.KindNotFound) {
		t.Errorf("second delete: err = %v, want not found", err)
	}
}

func TestWithTx_RollsBack(t *testing.T) {
	gdb := testDB(t)
	works, units := NewWorks(gdb), NewUnits(gdb)
	ctx := context.Background()
	mustCreateWork(t, works, "ember", 8)

	_ = gdb.Transaction(func(tx *gorm.DB) error {
		if _, err := units.WithTx(tx).Create(ctx, unit("ember", 1)); err != nil {
			t.Fatalf("create in tx: %v", err)
		}
		return errs.Validation("test", "abort")
	})
	if n, _ := units.Count(ctx, "ember"); n != 0 {
		t.Errorf("units after rollback = %d, want 0", n)
	}
}

func numbers(units []models.Unit) []int {
	out := make([]int, len(units))
	for i, u := range units {
		out[i] = u.Number
	}
	return out
}

func TestWorksConcepts(t *testing.T) {
	gdb := testDB(t)
	works := NewWorks(gdb)
	ctx := context.Background()

	for _, w := range []models.Work{
		{Slug: "b-work", Title: "B", Genre: "noir", Theme: "betrayal"},
		{Slug: "a-work", Title: "A", Genre: "fantasy", Theme: "exile", Variant: "v2"},
	} {
		w := w
		if _, err := works.Create(ctx, &w); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	got, err := works.Concepts(ctx)
	if err != nil {
		t.Fatalf("Concepts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Slug != "a-work" || got[0].Genre != "fantasy" || got[0].Variant != "v2" {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Theme != "betrayal" {
		t.Errorf("got[1] = %+v", got[1])
	}
}
