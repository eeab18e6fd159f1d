package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parish-tools/rosterbot/internal/service"
	"github.com/parish-tools/rosterbot/pkg/config"
	"github.com/parish-tools/rosterbot/pkg/logger"
	corsmiddleware "github.com/parish-tools/rosterbot/pkg/middleware/cors"
	initdatamiddleware "github.com/parish-tools/rosterbot/pkg/middleware/initdata"
	reqidmiddleware "github.com/parish-tools/rosterbot/pkg/middleware/requestid"
)

// NewRouter assembles the gin engine with the mini-app API, health and
// metrics endpoints.
func NewRouter(
	miniApp *MiniAppHandler,
	metrics *service.MetricsService,
	cfg *config.Config,
	logr *zap.Logger,
) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(metricsMiddleware(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	api.Use(initdatamiddleware.Middleware(cfg.Telegram.Token))
	{
		api.GET("/config", miniApp.Config)
		api.GET("/letters", miniApp.Letters)
		api.GET("/people", miniApp.People)
		api.GET("/people/:row", miniApp.Person)
		api.POST("/people", miniApp.CreatePerson)
		api.PUT("/people/:row", miniApp.UpdatePerson)
		api.DELETE("/people/:row", miniApp.DeletePerson)
		api.POST("/people/:row/photo", miniApp.UploadPhoto)
		api.POST("/columns", miniApp.AddColumn)
		api.DELETE("/columns/:name", miniApp.DeleteColumn)
		api.GET("/birthdays", miniApp.Birthdays)
		api.GET("/homerooms", miniApp.Homerooms)
		api.GET("/homerooms/people", miniApp.HomeroomPeople)
		api.POST("/assistant/ask", miniApp.Ask)
		api.GET("/export/csv", miniApp.ExportCSV)
		api.GET("/export/pdf", miniApp.ExportPDF)
	}

	return r
}

func metricsMiddleware(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
