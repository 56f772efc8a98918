package handler

import (
	"Go_Sentinel/internal/repo"
	"Go_Sentinel/internal/task"
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler serves the admin API.
type Handler struct {
	service *task.Service
	catalog *repo.Catalog
}

func New(service *task.Service, catalog *repo.Catalog) *Handler {
	return &Handler{service: service, catalog: catalog}
}

// Healthz reports whether the catalog database is reachable.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.catalog.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
