package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/quill/internal/errs"
	"github.com/zulandar/quill/internal/models"
	"github.com/zulandar/quill/internal/repository"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 200
)

type api struct {
	db       *gorm.DB
	works    *repository.Works
	units    *repository.Units
	runs     *repository.Runs
	analyzer Analyzer
	poll     time.Duration
}

func newAPI(db *gorm.DB, analyzer Analyzer) *api {
	return &api{
		db:       db,
		works:    repository.NewWorks(db),
		units:    repository.NewUnits(db),
		runs:     repository.NewRuns(db),
		analyzer: analyzer,
		poll:     3 * time.Second,
	}
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, a *api) {
	router.GET("/healthz", a.handleHealth)

	g := router.Group("/api")
	g.GET("/situation", a.handleSituation)
	g.GET("/works", a.handleWorkList)
	g.GET("/works/:slug", a.handleWorkDetail)
	g.GET("/works/:slug/units", a.handleUnitList)
	g.GET("/works/:slug/units/:n", a.handleUnit)
	g.GET("/runs", a.handleRuns)
	g.GET("/events", a.handleEvents)
}

// abort writes err as JSON with a status derived from its kind.
func abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.KindNotFound:
		status = http.StatusNotFound
	case errs.KindValidation, errs.KindContinuity:
		status = http.StatusBadRequest
	case errs.KindDomain:
		status = http.StatusConflict
	}
	c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error(), "kind": errs.KindOf(err)})
}

func (a *api) handleHealth(c *gin.Context) {
	sqlDB, err := a.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	counts, err := statusCounts(c.Request.Context(), a.db)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "works": counts})
}

func (a *api) handleSituation(c *gin.Context) {
	if a.analyzer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "situation analysis is not configured"})
		return
	}
	s, err := a.analyzer.Analyze(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (a *api) handleWorkList(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !models.ValidStatus(status) {
		abort(c, errs.Validation("dashboard: list works", "unknown status %q", status))
		return
	}
	works, err := a.works.List(c.Request.Context(), status)
	if err != nil {
		abort(c, err)
		return
	}
	rows := make([]WorkRow, len(works))
	for i, w := range works {
		rows[i] = workRow(w)
	}
	c.JSON(http.StatusOK, gin.H{"works": rows, "count": len(rows)})
}

func (a *api) handleWorkDetail(c *gin.Context) {
	d, err := workDetail(c.Request.Context(), a, c.Param("slug"))
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (a *api) handleUnitList(c *gin.Context) {
	ctx := c.Request.Context()
	slug := c.Param("slug")
	if _, err := a.works.Get(ctx, slug); err != nil {
		abort(c, err)
		return
	}
	units, err := a.units.List(ctx, slug)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"units": unitRows(units), "count": len(units)})
}

func (a *api) handleUnit(c *gin.Context) {
	n, err := strconv.Atoi(c.Param("n"))
	if err != nil || n < 1 {
		abort(c, errs.Validation("dashboard: get unit", "unit number %q must be a positive integer", c.Param("n")))
		return
	}
	u, err := a.units.Get(c.Request.Context(), c.Param("slug"), n)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, UnitView{UnitRow: unitRows([]models.Unit{*u})[0], WorkSlug: u.WorkSlug, Body: u.Body})
}

func (a *api) handleRuns(c *gin.Context) {
	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			abort(c, errs.Validation("dashboard: list runs", "limit %q must be a positive integer", raw))
			return
		}
		limit = min(v, maxRunLimit)
	}

	var (
		runs []models.RunRecord
		err  error
	)
	if slug := c.Query("work"); slug != "" {
		runs, err = a.runs.ForWork(c.Request.Context(), slug, limit)
	} else {
		runs, err = a.runs.List(c.Request.Context(), limit)
	}
	if err != nil {
		abort(c, err)
		return
	}
	rows := make([]RunRow, len(runs))
	for i, r := range runs {
		rows[i] = runRow(r)
	}
	c.JSON(http.StatusOK, gin.H{"runs": rows, "count": len(rows)})
}
