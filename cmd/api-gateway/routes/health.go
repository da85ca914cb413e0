package routes

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lgulliver/docdesk/cmd/api-gateway/types"
	"github.com/lgulliver/docdesk/internal/common"
	"github.com/lgulliver/docdesk/internal/history"
	"github.com/lgulliver/docdesk/internal/tools"
)

const (
	serviceName   = "docdesk-api-gateway"
	probeCacheTTL = 5 * time.Minute
)

// HealthRoutes sets up the health and statistics routes. stats may be nil
// when job history is disabled.
func HealthRoutes(router gin.IRouter, prober ToolProberInterface, runner JobRunnerInterface, stats StatsProviderInterface) {
	router.GET("/health", handleHealth(newProbeCache(prober, probeCacheTTL), runner))
	router.GET("/stats", handleStats(stats))
}

// probeCache keeps tool probe results for a while; probing starts every
// binary once.
type probeCache struct {
	prober ToolProberInterface
	ttl    time.Duration
	now    func() time.Time

	mu      sync.Mutex
	results []tools.ToolStatus
	expires time.Time
}

func newProbeCache(prober ToolProberInterface, ttl time.Duration) *probeCache {
	return &probeCache{prober: prober, ttl: ttl, now: time.Now}
}

func (p *probeCache) get(c *gin.Context) []tools.ToolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.results == nil || !p.now().Before(p.expires) {
		p.results = p.prober.Probe(c.Request.Context())
		p.expires = p.now().Add(p.ttl)
	}
	return p.results
}

func handleHealth(probes *probeCache, runner JobRunnerInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, types.HealthStatus{
			Status:   "healthy",
			Service:  serviceName,
			Time:     time.Now().UTC(),
			InFlight: runner.InFlight(),
			Tools:    probes.get(c),
		})
	}
}

func handleStats(stats StatsProviderInterface) gin.HandlerFunc {
	return func(c *gin.Context) {
		if stats == nil {
			c.JSON(http.StatusServiceUnavailable, types.ErrorResponse{
				Error: "job history is disabled",
				Code:  "unavailable",
			})
			return
		}

		var query history.StatsQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			respondError(c, common.Validation("invalid stats query"))
			return
		}

		result, err := stats.GetStats(c.Request.Context(), &query)
		if err != nil {
			respondError(c, common.Storage("failed to load job statistics", err))
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
