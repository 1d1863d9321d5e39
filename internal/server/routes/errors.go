package routes

import (
	"errors"
	"net/http"

	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"

	"github.com/labstack/echo/v4"
)

// errorJSON maps engine errors onto status codes.
func errorJSON(c echo.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, common.ErrMalformedInput):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	logger.Error("[Server] Request failed", "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
}
