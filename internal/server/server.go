// Package server exposes the current snapshot over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/app"
	"github.com/bobmatnyc/the-island-sub004/internal/pipeline"
	mid "github.com/bobmatnyc/the-island-sub004/internal/server/middleware"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
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

// New builds the echo instance serving appCtx.
func New(appCtx *mid.App) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(mid.AppContextMiddleware(appCtx))
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("4M"))

	RegisterRoutes(e)
	return e
}

// Init serves the API until ctx is done. The served snapshot follows the
// current link of the artifact store.
func Init(ctx context.Context, a *app.App) error {
	snapshots, err := NewSnapshotHolder(ctx, a.Store)
	if err != nil {
		return err
	}
	go func() {
		if err := snapshots.Watch(ctx, a.Store.Root()); err != nil {
			logger.Error("[Server] Snapshot watcher stopped", "err", err)
		}
	}()

	appCtx := &mid.App{
		Snapshots:    snapshots,
		CurationPath: a.Config.CurationPath,
		MasterAPIKey: a.Config.MasterAPIKey,
		Rebuild: func(ctx context.Context) (pipeline.Report, error) {
			report, err := a.Rebuilder.Run(ctx, a.Inputs(), a.Options(nil))
			if err != nil {
				return report, err
			}
			_, err = snapshots.Reload(ctx)
			return report, err
		},
	}
	if a.Channel != nil {
		appCtx.Queue = a.Channel
	}
	if a.Config.AuthURL != "" {
		k, err := keyfunc.NewDefaultCtx(ctx, []string{a.Config.AuthURL + "/jwks"})
		if err != nil {
			return err
		}
		appCtx.KeyFunc = k.Keyfunc
	}

	e := New(appCtx)
	go func() {
		logger.Info("Starting server", "port", a.Config.Port)
		if err := e.Start(":" + a.Config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
	return nil
}
