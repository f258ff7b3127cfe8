package server

import (
	"github.com/OFFIS-RIT/aai-resources/internal/server/middleware"
	"github.com/OFFIS-RIT/aai-resources/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Migration routes
	apiRoutes.GET("/migrations", routes.GetMigrationsHandler, middleware.RequirePermission("migration.view"))

	// Edge rule routes
	apiRoutes.GET("/edge-rules", routes.GetEdgeRulesHandler, middleware.RequirePermission("rules.view"))
	apiRoutes.GET("/edge-rules/resolve", routes.ResolveEdgeRuleHandler, middleware.RequirePermission("rules.view"))
	apiRoutes.GET("/edge-rules/schema", routes.GetEdgeRuleSchemaHandler, middleware.RequirePermission("rules.view"))

	// Snapshot routes
	apiRoutes.GET("/snapshots", routes.GetSnapshotsHandler, middleware.RequirePermission("snapshot.view"))
	apiRoutes.GET("/snapshots/link", routes.GetSnapshotLinkHandler, middleware.RequirePermission("snapshot.link"))
}
