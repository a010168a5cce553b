// Package dashboard serves a read-only JSON view of works, units and runs.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/zulandar/quill/internal/logging"
	"github.com/zulandar/quill/internal/policy"
)

// Analyzer produces the current situation snapshot.
type Analyzer interface {
	Analyze(ctx context.Context) (*policy.Situation, error)
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	DB       *gorm.DB
	Analyzer Analyzer // optional; /api/situation returns 503 without it
	Port     int
	Out      io.Writer
	Log      *logging.Logger
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.DB == nil {
		return fmt.Errorf("dashboard: db is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(opts.DB, opts.Analyzer, opts.Log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// NewRouter builds the gin engine with every dashboard route registered.
func NewRouter(db *gorm.DB, analyzer Analyzer, log *logging.Logger) *gin.Engine {
	if log == nil {
		log = logging.Nop()
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLog(log))
	registerRoutes(router, newAPI(db, analyzer))
	return router
}

// requestLog logs each request at debug level, and server errors at warn.
func requestLog(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			log.Warn("dashboard request failed", append(kv, "error", c.Errors.String())...)
			return
		}
		log.Debug("dashboard request", kv...)
	}
}
