package routes

import (
	"errors"
	"net/http"

	"github.com/bobmatnyc/the-island-sub004/internal/pipeline"
	"github.com/bobmatnyc/the-island-sub004/internal/queue"
	"github.com/bobmatnyc/the-island-sub004/internal/server/middleware"
	"github.com/bobmatnyc/the-island-sub004/pkg/store"

	"github.com/labstack/echo/v4"
)

var errRebuildUnavailable = errors.New("rebuilds are not enabled on this server")

// RebuildHandler queues a rebuild, or runs it in-process without a queue.
func RebuildHandler(c echo.Context) error {
	type rebuildResponse struct {
		Message   string           `json:"message"`
		RequestID string           `json:"request_id,omitempty"`
		Report    *pipeline.Report `json:"report,omitempty"`
	}

	app := c.(*middleware.AppContext).App
	if app.Queue != nil {
		id, err := queue.EnqueueRebuild(app.Queue, "api")
		if err != nil {
			return errorJSON(c, err)
		}
		return c.JSON(http.StatusAccepted, rebuildResponse{Message: "Rebuild queued", RequestID: id})
	}

	report, err := runRebuild(c)
	switch {
	case errors.Is(err, errRebuildUnavailable):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrLocked):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, rebuildResponse{Message: "Rebuild committed", Report: &report})
}

func runRebuild(c echo.Context) (pipeline.Report, error) {
	app := c.(*middleware.AppContext).App
	if app.Rebuild == nil {
		return pipeline.Report{}, errRebuildUnavailable
	}
	return app.Rebuild(c.Request().Context())
}
