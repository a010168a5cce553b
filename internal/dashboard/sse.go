package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zulandar/quill/internal/models"
)

// handleEvents streams a "run" event for every run recorded after the
// client connected.
func (a *api) handleEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
	c.Writer.Flush()

	// Only runs that start after the newest one we can already see.
	var since time.Time
	var latest models.RunRecord
	if err := a.db.Order("started_at DESC").Limit(1).Find(&latest).Error; err == nil {
		since = latest.StartedAt
	}

	ctx := c.Request.Context()
	ticker := time.NewTicker(a.poll)
	heartbeat := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-ticker.C:
			var runs []models.RunRecord
			if err := a.db.WithContext(ctx).Where("started_at > ?", since).
				Order("started_at ASC").Find(&runs).Error; err != nil || len(runs) == 0 {
				continue
			}
			since = runs[len(runs)-1].StartedAt
			for _, r := range runs {
				writeSSE(c.Writer, "run", runRow(r))
			}
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
