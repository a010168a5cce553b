package orchestrator

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/zulandar/quill/internal/logging"
	"github.com/zulandar/quill/internal/models"
)

// record persists the run outcome. A failure to record is logged and does
// not change the result.
func (o *Orchestrator) record(ctx context.Context, res *RunResult, trigger string, log *logging.Logger) {
	rec := &models.RunRecord{
		ID:         res.RunID,
		Action:     string(res.Action.Kind),
		WorkSlug:   res.WorkSlug,
		Success:    res.Success,
		Message:    res.Detail,
		Trigger:    trigger,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		DurationMs: res.Duration().Milliseconds(),
	}
	if res.Error != nil {
		rec.Stage = string(res.Error.Stage)
		rec.Message = res.Error.Message
	}
	nums := make([]string, len(res.Committed))
	for i, u := range res.Committed {
		nums[i] = strconv.Itoa(u.Number)
	}
	rec.Units = strings.Join(nums, ",")
	if res.Situation != nil {
		if data, err := json.Marshal(res.Situation); err == nil {
			rec.Situation = string(data)
		}
	}
	if err := o.runs.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.Warn("recording run failed", "error", err)
	}
}

// publish writes the acted-on Work and its new Units to the artifact
// store.
func (o *Orchestrator) publish(ctx context.Context, res *RunResult) error {
	if o.pub == nil || len(res.Committed) == 0 {
		return nil
	}
	ctx, span := o.tracer.Start(ctx, "quill.publish")
	defer span.End()

	w, err := o.works.Get(ctx, res.WorkSlug)
	if err != nil {
		return err
	}
	if err := o.pub.PublishWork(ctx, w); err != nil {
		return err
	}
	units := make([]models.Unit, 0, len(res.Committed))
	for _, ref := range res.Committed {
		u, err := o.units.Get(ctx, ref.WorkSlug, ref.Number)
		if err != nil {
			return err
		}
		units = append(units, *u)
	}
	return o.pub.PublishUnits(ctx, w, units)
}
