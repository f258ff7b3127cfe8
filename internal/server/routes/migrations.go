package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/aai-resources/internal/server/middleware"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"

	"github.com/labstack/echo/v4"
)

func GetMigrationsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.Migrations == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Migrations are not configured"})
	}

	listings, err := app.Migrations.List(c.Request().Context())
	if err != nil {
		logger.Error("[Server][Migrations] Failed to list migrations", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, listings)
}
