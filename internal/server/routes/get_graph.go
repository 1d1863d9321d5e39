package routes

import (
	"net/http"

	"github.com/bobmatnyc/the-island-sub004/internal/server/middleware"
	"github.com/bobmatnyc/the-island-sub004/pkg/query"

	"github.com/labstack/echo/v4"
)

func GetGraphHandler(c echo.Context) error {
	filter := new(query.GraphFilter)
	if err := c.Bind(filter); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(filter); err != nil {
		return badRequest(c)
	}

	snapshot := c.(*middleware.AppContext).App.Snapshots.Current()
	graph, err := snapshot.GetGraph(c.Request().Context(), *filter)
	if err != nil {
		return errorJSON(c, err)
	}
	c.Response().Header().Set("X-Snapshot-Version", snapshot.Version())
	return c.JSON(http.StatusOK, graph)
}

func GetStatsHandler(c echo.Context) error {
	snapshot := c.(*middleware.AppContext).App.Snapshots.Current()
	return c.JSON(http.StatusOK, snapshot.Stats())
}
