package handler

import (
	"Go_Sentinel/internal/dto"
	"Go_Sentinel/internal/sentinel"
	"Go_Sentinel/utils"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// EnqueueDataset publishes a download for one dataset.
func (h *Handler) EnqueueDataset(c *gin.Context) {
	var req dto.EnqueueDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	queued, err := h.service.EnqueueDataset(c.Request.Context(), req.GUID, req.Title)
	if errors.Is(err, sentinel.ErrMalformedTitle) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		log.WithError(err).WithField("dataset_guid", req.GUID).Error("enqueue failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	resp := dto.EnqueueResponse{GUID: req.GUID, Queued: queued}
	if !queued {
		resp.Reason = "already downloaded"
	}
	c.JSON(http.StatusAccepted, resp)
}

// EnqueueCatalog publishes a download for every dataset not yet downloaded.
func (h *Handler) EnqueueCatalog(c *gin.Context) {
	n, err := h.service.EnqueueCatalog(c.Request.Context())
	if err != nil {
		log.WithError(err).Error("catalog enqueue failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "published": n})
		return
	}
	c.JSON(http.StatusAccepted, dto.CatalogEnqueueResponse{Published: n})
}

// ListTasks lists the most recently updated journal rows.
func (h *Handler) ListTasks(c *gin.Context) {
	var req dto.ListTasksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		utils.Fail(c, err)
		return
	}
	tasks, err := h.catalog.ListTasks(c.Request.Context(), req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get tasks failed: " + err.Error()})
		return
	}
	out := make([]dto.TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, dto.NewTaskResponse(t))
	}
	utils.Success(c, out)
}

// GetTask returns the journal row of one dataset.
func (h *Handler) GetTask(c *gin.Context) {
	guid := c.Param("guid")
	t, err := h.catalog.FindTask(c.Request.Context(), guid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	utils.Success(c, dto.NewTaskResponse(*t))
}
