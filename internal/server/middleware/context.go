package middleware

import (
	"context"

	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

// MigrationLister reports the registered migration units.
type MigrationLister interface {
	List(ctx context.Context) ([]migration.Listing, error)
}

// SnapshotBucket is the remote snapshot storage the API can browse.
type SnapshotBucket interface {
	List(ctx context.Context) ([]string, error)
	DownloadLink(ctx context.Context, key, publicEndpoint string) (string, error)
}

type App struct {
	Migrations     MigrationLister
	Resolver       *edgerules.Resolver
	Snapshots      SnapshotBucket
	PublicEndpoint string
	Keyfunc        jwt.Keyfunc
	MasterAPIKey   string
	MasterUserID   string
	MasterUserRole string
}

type AppContext struct {
	echo.Context
	App  *App
	User *AppUser
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil}
			return next(cc)
		}
	}
}
