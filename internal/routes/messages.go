package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/imedhamdi/mapmarket-backend/internal/handlers"
	"github.com/imedhamdi/mapmarket-backend/internal/middleware"
)

func RegisterMessageRoutes(r gin.IRouter) {
	messages := r.Group("/messages")
	messages.Use(middleware.AuthMiddleware())
	{
		messages.POST("", middleware.SendRateLimit(), handlers.SendMessage)
		messages.POST("/image", middleware.UploadRateLimit(), handlers.SendImageMessage)
		messages.DELETE("/:id", handlers.DeleteMessage)
	}

	reports := r.Group("/reports")
	reports.Use(middleware.AuthMiddleware())
	{
		reports.POST("", handlers.ReportMessage)
	}
}
