// Package api implements the HTTP handlers of the Schemes API.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/celerix-dev/schemes/internal/api/middleware"
	"github.com/celerix-dev/schemes/internal/pkg/logger"
	"github.com/celerix-dev/schemes/pkg/engine"
	"github.com/celerix-dev/schemes/pkg/schema"
)

// Client-facing error messages.
const (
	MsgInvalidID = "Invalid scheme ID"
	MsgNotFound  = "Scheme not found"
)

// timestampLayout renders UTC instants with millisecond precision.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// readyTimeout bounds the backend ping made by the readiness probe.
const readyTimeout = 3 * time.Second

// Response is the envelope every scheme endpoint answers with.
type Response struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Handler struct {
	Store engine.Store
	// Now is the clock used by the health endpoint.
	Now func() time.Time
}

// Register mounts the scheme routes on g.
func Register(g *gin.RouterGroup, h *Handler) {
	g.GET("/health", h.Health)
	g.GET("/health/ready", h.Ready)

	g.GET("/schemes", h.ListSchemes)
	g.POST("/schemes", h.CreateScheme)
	g.GET("/schemes/:id", h.GetScheme)
	g.PUT("/schemes/:id", h.UpdateScheme)
	g.DELETE("/schemes/:id", h.DeleteScheme)
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// Health reports liveness. It never touches the store.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"message":   "API is healthy",
		"timestamp": h.now().Format(timestampLayout),
	})
}

// Ready reports whether the store backend is reachable.
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		logger.Warn("Readiness check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "UNAVAILABLE",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "OK"})
}

func (h *Handler) ListSchemes(c *gin.Context) {
	var f schema.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return
	}

	list, err := h.Store.FindMany(c.Request.Context(), f)
	if err != nil {
		h.writeError(c, err)
		return
	}
	count := len(list)
	c.JSON(http.StatusOK, Response{Success: true, Count: &count, Data: list})
}

func (h *Handler) GetScheme(c *gin.Context) {
	s, err := h.Store.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: s})
}

func (h *Handler) CreateScheme(c *gin.Context) {
	in, ok := bindInput(c)
	if !ok {
		return
	}

	s, err := h.Store.Create(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, Response{Success: true, Data: s})
}

func (h *Handler) UpdateScheme(c *gin.Context) {
	in, ok := bindInput(c)
	if !ok {
		return
	}

	s, err := h.Store.UpdateByID(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: s})
}

func (h *Handler) DeleteScheme(c *gin.Context) {
	if err := h.Store.DeleteByID(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{}})
}

// bindInput decodes the request body. An empty body is an empty input.
func bindInput(c *gin.Context) (schema.SchemeInput, bool) {
	var in schema.SchemeInput
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, Response{Error: err.Error()})
		return in, false
	}
	return in, true
}

// writeError translates a store error into its HTTP status and envelope.
func (h *Handler) writeError(c *gin.Context, err error) {
	if verr, ok := engine.IsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, Response{Error: verr.Error()})
		return
	}

	switch {
	case errors.Is(err, engine.ErrInvalidID):
		c.JSON(http.StatusBadRequest, Response{Error: MsgInvalidID})
	case errors.Is(err, engine.ErrNotFound):
		c.JSON(http.StatusNotFound, Response{Error: MsgNotFound})
	default:
		_ = c.Error(err)
		logger.Error("Scheme request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("request_id", middleware.GetRequestID(c.Request.Context())),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, Response{Error: err.Error()})
	}
}
