package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/imedhamdi/mapmarket-backend/internal/handlers"
	"github.com/imedhamdi/mapmarket-backend/internal/middleware"
)

func RegisterModerationRoutes(r gin.IRouter) {
	users := r.Group("/users")
	users.Use(middleware.AuthMiddleware())
	{
		users.POST("/:id/block", handlers.BlockUser)
		users.POST("/:id/unblock", handlers.UnblockUser)
	}
}
