package endpoint

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
)

// PoolStats reports worker pool occupancy.
type PoolStats func() (running, queued int)

// Metrics reports runtime memory, goroutines and, when stats is set, the
// worker pool queue. Job and segment metrics are exported over OTLP.
func Metrics(stats PoolStats) gin.HandlerFunc {
	return func(c *gin.Context) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		body := gin.H{
			"goroutines": runtime.NumGoroutine(),
			"memory": gin.H{
				"alloc_mb": m.Alloc >> 20,
				"sys_mb":   m.Sys >> 20,
				"gc_runs":  m.NumGC,
			},
		}
		if stats != nil {
			running, queued := stats()
			body["pool"] = gin.H{"running": running, "queued": queued}
		}
		c.JSON(http.StatusOK, body)
	}
}
