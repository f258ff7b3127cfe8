package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/aai-resources/internal/server/middleware"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"

	"github.com/labstack/echo/v4"
)

func GetSnapshotsHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if app.Snapshots == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Snapshot storage is not configured"})
	}

	keys, err := app.Snapshots.List(c.Request().Context())
	if err != nil {
		logger.Error("[Server][Snapshots] Failed to list snapshots", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, map[string]any{"snapshots": keys})
}

func GetSnapshotLinkHandler(c echo.Context) error {
	type getSnapshotLinkParams struct {
		Key string `query:"key" validate:"required"`
	}

	params := new(getSnapshotLinkParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	app := c.(*middleware.AppContext).App
	if app.Snapshots == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Snapshot storage is not configured"})
	}

	link, err := app.Snapshots.DownloadLink(c.Request().Context(), params.Key, app.PublicEndpoint)
	if err != nil {
		logger.Error("[Server][Snapshots] Failed to create download link", "key", params.Key, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to create download link"})
	}

	return c.JSON(http.StatusOK, map[string]string{"url": link})
}
