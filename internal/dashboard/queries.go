package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/repository"
)

// recentLimit bounds the units and runs embedded in a work detail.
const recentLimit = 5

// WorkRow is the listing view of a Work.
type WorkRow struct {
	Slug         string    `json:"slug"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	UnitCount    int       `json:"unit_count"`
	PlannedUnits int       `json:"planned_units"`
	Genre        string    `json:"genre,omitempty"`
	Tags         []string  `json:"tags"`
	UpdatedAt    time.Time `json:"updated_at"`
	Age          string    `json:"age"`
}

func workRow(w models.Work) WorkRow {
	return WorkRow{
		Slug:         w.Slug,
		Title:        w.Title,
		Status:       w.Status,
		UnitCount:    w.UnitCount,
		PlannedUnits: w.PlannedUnits,
		Genre:        w.Genre,
		Tags:         repository.Tags(w),
		UpdatedAt:    w.UpdatedAt,
		Age:          formatDuration(time.Since(w.CreatedAt)),
	}
}

// UnitRow is a Unit without its body.
type UnitRow struct {
	Number      int       `json:"number"`
	Title       string    `json:"title"`
	Kind        string    `json:"kind"`
	Words       int       `json:"words"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

func unitRows(units []models.Unit) []UnitRow {
	rows := make([]UnitRow, len(units))
	for i, u := range units {
		rows[i] = UnitRow{
			Number:      u.Number,
			Title:       u.Title,
			Kind:        u.Kind,
			Words:       u.WordCount,
			Summary:     u.Summary,
			PublishedAt: u.PublishedAt,
		}
	}
	return rows
}

// UnitView is a single Unit including its body.
type UnitView struct {
	UnitRow
	WorkSlug string `json:"work_slug"`
	Body     string `json:"body"`
}

// RunRow is the listing view of a RunRecord.
type RunRow struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	WorkSlug  string    `json:"work_slug,omitempty"`
	Success   bool      `json:"success"`
	Stage     string    `json:"stage,omitempty"`
	Message   string    `json:"message"`
	Units     []int     `json:"units,omitempty"`
	Trigger   string    `json:"trigger"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

func runRow(r models.RunRecord) RunRow {
	row := RunRow{
		ID:        r.ID,
		Action:    r.Action,
		WorkSlug:  r.WorkSlug,
		Success:   r.Success,
		Stage:     r.Stage,
		Message:   r.Message,
		Trigger:   r.Trigger,
		StartedAt: r.StartedAt,
		Duration:  formatDuration(time.Duration(r.DurationMs) * time.Millisecond),
	}
	for _, s := range strings.Split(r.Units, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			row.Units = append(row.Units, n)
		}
	}
	return row
}

// WorkDetail is a Work with its progress, latest units and latest runs.
type WorkDetail struct {
	*repository.WorkProgress
	Summary     string     `json:"summary,omitempty"`
	Genre       string     `json:"genre,omitempty"`
	Theme       string     `json:"theme,omitempty"`
	Variant     string     `json:"variant,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Recent      []UnitRow  `json:"recent_units"`
	Runs        []RunRow   `json:"runs"`
}

func workDetail(ctx context.Context, a *api, slug string) (*WorkDetail, error) {
	w, err := a.works.Get(ctx, slug)
	if err != nil {
		return nil, err
	}
	progress, err := a.works.GetProgress(ctx, slug)
	if err != nil {
		return nil, err
	}
	recent, err := a.units.Recent(ctx, slug, recentLimit)
	if err != nil {
		return nil, err
	}
	runs, err := a.runs.ForWork(ctx, slug, recentLimit)
	if err != nil {
		return nil, err
	}

	d := &WorkDetail{
		WorkProgress: progress,
		Summary:      w.Summary,
		Genre:        w.Genre,
		Theme:        w.Theme,
		Variant:      w.Variant,
		CreatedAt:    w.CreatedAt,
		CompletedAt:  w.CompletedAt,
		Recent:       unitRows(recent),
		Runs:         make([]RunRow, len(runs)),
	}
	for i, r := range runs {
		d.Runs[i] = runRow(r)
	}
	return d, nil
}

// statusCounts returns the number of works in each status. Every known
// status is present, zero or not.
func statusCounts(ctx context.Context, db *gorm.DB) (map[string]int, error) {
	type row struct {
		Status string
		Count  int
	}
	var rows []row
	if err := db.WithContext(ctx).Model(&models.Work{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, errs.Storage("dashboard: status counts", err)
	}
	counts := map[string]int{
		models.StatusActive:          0,
		models.StatusCompletionReady: 0,
		models.StatusCompleted:       0,
		models.StatusPaused:          0,
	}
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// formatDuration formats a duration as a compact human string.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh%dm", h, m)
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
