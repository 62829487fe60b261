package dashboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/roundhouse/internal/db"
	"github.com/zulandar/roundhouse/internal/fleet"
	"gorm.io/gorm"
)

// reportView is the JSON shape of one session report, with batch counters
// flattened in.
type reportView struct {
	SessionID string `json:"session_id"`
	Label     string `json:"label"`
	Outcome   string `json:"outcome"`
	Message   string `json:"message"`
	Processed int    `json:"processed,omitempty"`
	Succeeded int    `json:"succeeded,omitempty"`
	Skipped   int    `json:"skipped,omitempty"`
	Errors    int    `json:"errors,omitempty"`
	Deleted   int    `json:"deleted,omitempty"`
}

func viewOf(r fleet.SessionReport) reportView {
	v := reportView{
		SessionID: r.SessionID,
		Label:     r.Label,
		Outcome:   r.Outcome.String(),
		Message:   r.Message,
		Deleted:   r.Deleted,
	}
	if r.Job != nil {
		v.Processed = r.Job.Processed
		v.Succeeded = r.Job.Succeeded
		v.Skipped = r.Job.Skipped
		v.Errors = r.Job.Errors
	}
	return v
}

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, f Fleet, gdb *gorm.DB) {
	router.GET("/healthz", handleHealth)
	router.GET("/api/sessions", handleSessions(f))
	router.GET("/api/reports", handleReports(f))
	router.GET("/api/leaderboard/:guild", handleLeaderboard(gdb))
	router.GET("/api/events", handleSSE(f))
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleSessions(f Fleet) gin.HandlerFunc {
	return func(c *gin.Context) {
		infos := f.Snapshot()
		if infos == nil {
			infos = []fleet.SessionInfo{}
		}
		c.JSON(http.StatusOK, infos)
	}
}

func handleReports(f Fleet) gin.HandlerFunc {
	return func(c *gin.Context) {
		reports := f.RecentReports()
		views := make([]reportView, len(reports))
		for i, r := range reports {
			views[i] = viewOf(r)
		}
		c.JSON(http.StatusOK, views)
	}
}

func handleLeaderboard(gdb *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if gdb == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store not configured"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
		if err != nil || limit <= 0 {
			limit = 10
		}
		scores, err := db.TopScores(gdb, c.Param("guild"), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		rows := make([]gin.H, len(scores))
		for i, s := range scores {
			rows[i] = gin.H{"user_id": s.UserID, "points": s.Points}
		}
		c.JSON(http.StatusOK, rows)
	}
}
