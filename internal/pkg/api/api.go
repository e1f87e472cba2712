package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ambercms/amber-update/internal/pkg/api/apicommon"
	"github.com/ambercms/amber-update/internal/pkg/api/updateapi"
	"github.com/ambercms/amber-update/internal/pkg/backup"
	"github.com/ambercms/amber-update/internal/pkg/core/metrics"
	"github.com/ambercms/amber-update/internal/pkg/update"
)

// BuildApp assembles the gin engine with the operator endpoints.
func BuildApp(config *apicommon.Config, orchestrator *update.Orchestrator, backups *backup.Store) *gin.Engine {
	log.Debug("Building app")
	r := gin.Default()
	r.Use(metrics.PrometheusMiddleware())
	r.GET("/api/v1/ping", ping)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.PromRegistry, promhttp.HandlerOpts{})))

	system := r.Group("/api/v1/system")
	system.Use(requireManageSystem(config.AdminToken))
	updateapi.RegisterRoutes(system, config, orchestrator, backups)

	return r
}

// requireManageSystem is the stand-in for the external "can manage system"
// authorization check: a static bearer token identifying the operator.
func requireManageSystem(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token != "Bearer "+adminToken || adminToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, apicommon.ErrorResponse{Message: "Unauthorized"})
			return
		}
		actor := c.GetHeader("X-Actor-Id")
		if actor == "" {
			actor = "admin"
		}
		c.Set(apicommon.ActorKey, actor)
		c.Next()
	}
}

func ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}
