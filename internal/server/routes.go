package server

import (
	"github.com/bobmatnyc/the-island-sub004/internal/server/middleware"
	"github.com/bobmatnyc/the-island-sub004/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Query routes
	apiRoutes.GET("/entities", routes.GetEntitiesHandler)
	apiRoutes.GET("/entities/:key", routes.GetEntityHandler)
	apiRoutes.GET("/graph", routes.GetGraphHandler)
	apiRoutes.GET("/stats", routes.GetStatsHandler)

	// Curation routes
	apiRoutes.POST("/curation/aliases", routes.CreateAliasHandler, middleware.RequirePermission(middleware.PermissionCurate))
	apiRoutes.POST("/curation/exclusions", routes.CreateExclusionHandler, middleware.RequirePermission(middleware.PermissionCurate))

	// Rebuild routes
	apiRoutes.POST("/rebuild", routes.RebuildHandler, middleware.RequirePermission(middleware.PermissionRebuild))
}
