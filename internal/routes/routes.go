package routes

import (
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"identity-system/internal/controllers"
	"identity-system/pkg/middleware"
)

type Controllers struct {
	DataSource *controllers.DataSourceController
	Sync       *controllers.SyncController
	Directory  *controllers.DirectoryController
}

// InitRoutes вешает все маршруты API. Все маршруты закрыты авторизацией.
func InitRoutes(e *echo.Echo, c Controllers, authMW *middleware.AuthMiddleware, logger *zap.Logger) {
	api := e.Group("/api", authMW.Auth)

	dataSources := api.Group("/data-sources")
	dataSources.GET("", c.DataSource.List)
	dataSources.POST("", c.DataSource.Create)
	dataSources.GET("/:id", c.DataSource.Find)
	dataSources.PUT("/:id", c.DataSource.Update)
	dataSources.DELETE("/:id", c.DataSource.Delete)

	dataSources.POST("/:id/sync", c.Sync.Trigger)
	dataSources.GET("/:id/sync-tasks", c.Sync.ListTasks)
	api.GET("/sync-tasks/:task_id", c.Sync.GetTask)
	api.POST("/data-sources/test-connection", c.Sync.TestConnection)

	dataSources.GET("/:id/users", c.Directory.ListUsers)
	dataSources.GET("/:id/users/:code", c.Directory.GetUser)
	dataSources.PUT("/:id/users/:code/username", c.Directory.UpdateUsername)
	dataSources.GET("/:id/departments", c.Directory.ListDepartments)

	logger.Info("маршруты API инициализированы")
}
