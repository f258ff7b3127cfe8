package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/OFFIS-RIT/aai-resources/internal/config"
	"github.com/OFFIS-RIT/aai-resources/internal/migrations"
	mid "github.com/OFFIS-RIT/aai-resources/internal/server/middleware"
	"github.com/OFFIS-RIT/aai-resources/internal/util"
	"github.com/OFFIS-RIT/aai-resources/pkg/edgerules"
	"github.com/OFFIS-RIT/aai-resources/pkg/logger"
	"github.com/OFFIS-RIT/aai-resources/pkg/migration"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"golang.org/x/sync/errgroup"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// New builds the echo instance serving app.
func New(app *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(app))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())

	RegisterRoutes(e)
	return e
}

// Init serves the admin API for cfg until SIGINT or SIGTERM.
func Init(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	table, err := cfg.LoadRules()
	if err != nil {
		return err
	}
	resolver := edgerules.NewResolver(table)

	backend, err := cfg.Open(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	app := &mid.App{
		Migrations: migration.NewOrchestrator(
			backend.Engine,
			edgerules.NewApplier(resolver),
			migrations.Registry(migrations.Options{ASDCInput: util.GetEnv("ASDC_INPUT")}),
		),
		Resolver:       resolver,
		PublicEndpoint: util.GetEnvString("AWS_PUBLIC_ENDPOINT", util.GetEnv("AWS_ENDPOINT")),
		MasterAPIKey:   util.GetEnv("MASTER_API_KEY"),
		MasterUserID:   util.GetEnv("MASTER_USER_ID"),
		MasterUserRole: util.GetEnv("MASTER_USER_ROLE"),
	}

	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			return err
		}
		app.Keyfunc = k.Keyfunc
	} else {
		logger.Warn("[Server][Init] AUTH_URL not set, only the master API key is accepted")
	}

	bucket, err := cfg.Bucket(ctx)
	if err != nil {
		return err
	}
	if bucket != nil {
		app.Snapshots = bucket
	}

	e := New(app)
	port := util.GetEnvString("PORT", "8080")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(util.GetEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10))*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shutdown server", "err", err)
			return err
		}
		return nil
	})
	return g.Wait()
}
