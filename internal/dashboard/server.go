// Package dashboard serves a read-only JSON view of the fleet: session
// status, recent job reports, and the store's leaderboard.
package dashboard

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/roundhouse/internal/fleet"
	"gorm.io/gorm"
)

// Fleet is the read-only slice of the session manager the dashboard serves.
type Fleet interface {
	Snapshot() []fleet.SessionInfo
	RecentReports() []fleet.SessionReport
}

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Fleet Fleet
	// DB backs the leaderboard endpoint. It may be nil, which disables it.
	DB   *gorm.DB
	Port int
	Out  io.Writer
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Fleet == nil {
		return fmt.Errorf("dashboard: fleet is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}

	gin.SetMode(gin.ReleaseMode)
	router := newRouter(opts.Fleet, opts.DB)

	addr := fmt.Sprintf(":%d", opts.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Dashboard running at http://localhost:%d\n", opts.Port)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

// newRouter builds the gin engine with all routes registered.
func newRouter(f Fleet, gdb *gorm.DB) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, f, gdb)
	return router
}
