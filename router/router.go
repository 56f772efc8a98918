package router

import (
	"Go_Sentinel/internal/handler"
	"Go_Sentinel/utils"

	"github.com/gin-gonic/gin"
)

// InitRouter builds the admin API routes.
func InitRouter(h *handler.Handler) *gin.Engine {
	r := gin.Default()
	r.Use(utils.CORSMiddleware())

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.POST("/login", h.Login)

		auth := api.Group("")
		auth.Use(utils.AuthMiddleware())

		tasks := auth.Group("/tasks")
		{
			tasks.POST("", h.EnqueueDataset)
			tasks.POST("/catalog", h.EnqueueCatalog)
			tasks.GET("", h.ListTasks)
			tasks.GET("/:guid", h.GetTask)
		}
	}
	return r
}
