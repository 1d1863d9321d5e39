package routes

import (
	"net/http"
	"net/url"

	"github.com/bobmatnyc/the-island-sub004/internal/server/middleware"
	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/query"

	"github.com/labstack/echo/v4"
)

// GetEntitiesHandler searches entities. ?trace=true adds what the query
// matched and returned.
func GetEntitiesHandler(c echo.Context) error {
	type searchResponse struct {
		query.SearchResult
		Version string                    `json:"version"`
		Trace   *query.QueryTraceSnapshot `json:"trace,omitempty"`
	}

	req := new(query.SearchRequest)
	if err := c.Bind(req); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(req); err != nil {
		return badRequest(c)
	}

	snapshot := c.(*middleware.AppContext).App.Snapshots.Current()
	var opts []query.QueryOption
	var trace *query.QueryTrace
	if c.QueryParam("trace") == "true" {
		trace = query.NewQueryTrace()
		opts = append(opts, query.WithTracer(trace))
	}

	res, err := snapshot.SearchEntities(c.Request().Context(), *req, opts...)
	if err != nil {
		return errorJSON(c, err)
	}

	out := searchResponse{SearchResult: res, Version: snapshot.Version()}
	if trace != nil {
		snap := trace.Snapshot()
		out.Trace = &snap
	}
	return c.JSON(http.StatusOK, out)
}

// GetEntityHandler looks an entity up by id, guid, name or alias.
func GetEntityHandler(c echo.Context) error {
	key := c.Param("key")
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	if key == "" {
		return badRequest(c)
	}

	snapshot := c.(*middleware.AppContext).App.Snapshots.Current()
	entity, err := snapshot.GetEntity(c.Request().Context(), key)
	if err != nil {
		return errorJSON(c, err)
	}
	return c.JSON(http.StatusOK, struct {
		common.CanonicalEntity
		Version string `json:"version"`
	}{entity, snapshot.Version()})
}
