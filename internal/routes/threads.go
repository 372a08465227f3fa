package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/imedhamdi/mapmarket-backend/internal/handlers"
	"github.com/imedhamdi/mapmarket-backend/internal/middleware"
)

func RegisterThreadRoutes(r gin.IRouter) {
	threads := r.Group("/threads")
	threads.Use(middleware.AuthMiddleware())
	{
		threads.GET("", handlers.ListThreads)
		threads.POST("/initiate", handlers.InitiateThread)
		threads.POST("/:id/archive", handlers.ArchiveThread)
		threads.POST("/:id/read", handlers.MarkThreadRead)
		threads.GET("/:id/messages", handlers.GetThreadMessages)
	}
}
