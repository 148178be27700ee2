package main

import (
	"database/sql"
	"net/http"
	"time"

	"telehealth-platform/internal/auth"
	"telehealth-platform/internal/httpapi"
	"telehealth-platform/internal/metrics"
	"telehealth-platform/internal/rbac"
	"telehealth-platform/internal/signaling"
	"telehealth-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	handlers httpapi.Handlers
	gateway  *signaling.Gateway
	resolver *auth.Resolver
	metrics  *metrics.Collector
	db       *sql.DB
	rdb      *redis.Client

	// exposeTokenIssuer mounts POST /v1/auth/token; never in production.
	exposeTokenIssuer bool
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		ctx := c.Request.Context()
		status := gin.H{"status": "ok", "postgres": "ok", "redis": "ok"}
		code := http.StatusOK
		if err := utils.HealthCheck(ctx, d.db, 2*time.Second); err != nil {
			status["postgres"], status["status"], code = "down", "degraded", http.StatusServiceUnavailable
		}
		if err := utils.RedisHealthCheck(ctx, d.rdb, 2*time.Second); err != nil {
			status["redis"], status["status"], code = "down", "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	})
	r.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	// Signaling socket; authenticates itself before upgrading.
	r.GET("/ws", d.gateway.HandleConnect)

	v1 := r.Group("/v1")
	if d.exposeTokenIssuer {
		v1.POST("/auth/token", d.handlers.IssueToken)
	}

	// protected API group
	protected := v1.Group("")
	protected.Use(auth.RequireAccessToken(d.resolver))
	{
		protected.GET("/ice-servers", d.handlers.GetICEServers)

		calls := protected.Group("/calls")
		calls.Use(rbac.RequireAnyRole(rbac.RoleDoctor, rbac.RolePatient))
		{
			calls.GET("/:call_id", d.handlers.GetCall)
			calls.GET("/:call_id/audit", d.handlers.GetCallAudit)
		}

		admin := protected.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.GET("/media", d.handlers.MediaStats)
		}
	}
}
