package routers

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"

	"github.com/projectTest192/FoodTrace/internal/handlers"
)

type APIRouterOptions struct {
	Logger *zap.SugaredLogger
	Api    *handlers.API
}

func NewAPIRouter(o APIRouterOptions) (*gin.Engine, error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(ginzap.GinzapWithConfig(o.Logger.Desugar(), &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
	}))
	r.Use(ginzap.RecoveryWithZap(o.Logger.Desugar(), true))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, handlers.ActorRoleHeader)
	r.Use(cors.New(corsConfig))

	newPrometheus().Use(r)

	api := o.Api
	private := r.Group("/api")
	{
		// Entities
		private.POST("/entities/:kind/:id/status", api.UpdateEntityStatus)
		private.GET("/entities/:kind/:id/history", api.GetEntityHistory)

		// Trace
		private.GET("/trace/:kind/:id", api.GetTrace)

		// Devices
		private.GET("/devices", api.ListDevices)
		private.GET("/devices/:deviceId", api.GetDevice)
		private.POST("/devices/:deviceId/bind", api.BindDevice)
		private.GET("/devices/:deviceId/binding", api.GetDeviceBinding)
		private.GET("/devices/:deviceId/realtime", api.GetDeviceRealtime)
		private.GET("/devices/:deviceId/alerts", api.GetDeviceAlerts)
		private.DELETE("/devices/:deviceId/alerts", api.ClearDeviceAlerts)

		// Ingestion
		private.POST("/ingest", api.Ingest)
	}

	r.GET("/healthz", api.Live)

	return r, nil
}

func newPrometheus() *ginprometheus.Prometheus {
	p := ginprometheus.NewPrometheus("apiserver")
	p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
		url := c.Request.URL.Path
		for _, p := range c.Params {
			if p.Key == "id" || p.Key == "deviceId" {
				url = strings.Replace(url, p.Value, ":"+p.Key, 1)
			}
		}
		return url
	}
	return p
}
