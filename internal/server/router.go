// Package server assembles the HTTP router and runs the listener.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/celerix-dev/schemes/internal/api"
	"github.com/celerix-dev/schemes/internal/api/middleware"
	"github.com/celerix-dev/schemes/internal/config"
	"github.com/celerix-dev/schemes/internal/pkg/logger"
	"github.com/celerix-dev/schemes/pkg/engine"
)

// NewRouter builds the gin engine serving the scheme API under
// cfg.Server.BasePath plus the operational endpoints.
func NewRouter(cfg *config.Config, store engine.Store) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(),
		middleware.Metrics(),
		cors.New(buildCORSConfig(cfg)),
	)

	h := &api.Handler{Store: store}
	api.Register(r.Group(cfg.Server.BasePath), h)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	logLevel := gin.WrapH(logger.LevelHandler())
	r.GET("/log/level", logLevel)
	r.PUT("/log/level", logLevel)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, api.Response{Error: "Route not found"})
	})

	return r
}

// buildCORSConfig maps the server settings onto gin-contrib/cors.
// A "*" entry, or no entry at all, allows every origin; credentials are
// never combined with a wildcard origin.
func buildCORSConfig(cfg *config.Config) cors.Config {
	out := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	var origins []string
	allowAll := len(cfg.Server.AllowedOrigins) == 0
	for _, o := range cfg.Server.AllowedOrigins {
		if o == "*" {
			allowAll = true
			continue
		}
		origins = append(origins, o)
	}

	if allowAll {
		out.AllowAllOrigins = true
		return out
	}
	out.AllowOrigins = origins
	out.AllowCredentials = cfg.Server.AllowCredentials
	return out
}
