package middleware

import (
	"context"

	"github.com/bobmatnyc/the-island-sub004/internal/pipeline"
	"github.com/bobmatnyc/the-island-sub004/internal/queue"
	"github.com/bobmatnyc/the-island-sub004/pkg/query"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

// SnapshotSource hands out the snapshot currently being served.
type SnapshotSource interface {
	Current() query.QueryClient
}

type App struct {
	Snapshots SnapshotSource
	// Queue is nil without RabbitMQ; writes then run in-process.
	Queue        queue.Channel
	CurationPath string
	Rebuild      func(ctx context.Context) (pipeline.Report, error)

	// KeyFunc verifies JWTs. Nil disables JWT auth.
	KeyFunc      jwt.Keyfunc
	MasterAPIKey string
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
