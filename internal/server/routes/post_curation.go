package routes

import (
	"net/http"
	"time"

	"github.com/bobmatnyc/the-island-sub004/internal/curation"
	"github.com/bobmatnyc/the-island-sub004/internal/queue"
	"github.com/bobmatnyc/the-island-sub004/internal/server/middleware"
	"github.com/bobmatnyc/the-island-sub004/pkg/common"
	"github.com/bobmatnyc/the-island-sub004/pkg/logger"

	"github.com/labstack/echo/v4"
)

type curationResponse struct {
	Message      string `json:"message"`
	SubmissionID string `json:"submission_id,omitempty"`
	RequestID    string `json:"request_id,omitempty"`
}

// CreateAliasHandler records curated aliases for the next rebuild.
func CreateAliasHandler(c echo.Context) error {
	type aliasBody struct {
		Variant    string            `json:"variant" validate:"required"`
		Canonical  string            `json:"canonical" validate:"required"`
		EntityType common.EntityType `json:"entity_type" validate:"omitempty,oneof=person organization location"`
	}
	type createAliasesBody struct {
		Aliases []aliasBody `json:"aliases" validate:"required,min=1,dive"`
		Rebuild bool        `json:"rebuild"`
	}

	data := new(createAliasesBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	file := curation.File{}
	for _, a := range data.Aliases {
		file.Aliases = append(file.Aliases, common.AliasMapping{
			Variant:    a.Variant,
			Canonical:  a.Canonical,
			EntityType: a.EntityType,
			Provenance: common.ProvenanceCurated,
		})
	}
	return submitCuration(c, file, data.Rebuild)
}

// CreateExclusionHandler records curated exclusions for the next rebuild.
func CreateExclusionHandler(c echo.Context) error {
	type exclusionBody struct {
		ID         string            `json:"id" validate:"required_without=Name"`
		Name       string            `json:"name" validate:"required_without=ID"`
		EntityType common.EntityType `json:"entity_type" validate:"omitempty,oneof=person organization location"`
		Reason     string            `json:"reason" validate:"required"`
	}
	type createExclusionsBody struct {
		Exclusions []exclusionBody `json:"exclusions" validate:"required,min=1,dive"`
		Rebuild    bool            `json:"rebuild"`
	}

	data := new(createExclusionsBody)
	if err := c.Bind(data); err != nil {
		return badRequest(c)
	}
	if err := c.Validate(data); err != nil {
		return badRequest(c)
	}

	file := curation.File{}
	for _, x := range data.Exclusions {
		file.Exclusions = append(file.Exclusions, curation.Exclusion{
			ID:         x.ID,
			Name:       x.Name,
			EntityType: x.EntityType,
			Reason:     x.Reason,
		})
	}
	return submitCuration(c, file, data.Rebuild)
}

// submitCuration hands the entries to the worker when a queue is
// configured and appends them to the curation file otherwise.
func submitCuration(c echo.Context, file curation.File, rebuild bool) error {
	app := c.(*middleware.AppContext).App
	user := c.(*middleware.AppContext).User

	if app.Queue != nil {
		id, err := queue.EnqueueCuration(app.Queue, file, rebuild)
		if err != nil {
			return errorJSON(c, err)
		}
		logger.Info("[Server] Curation queued", "request_id", id, "user_id", user.UserID)
		return c.JSON(http.StatusAccepted, curationResponse{Message: "Curation queued", RequestID: id})
	}

	id, err := curation.Append(app.CurationPath, file, time.Now())
	if err != nil {
		return errorJSON(c, err)
	}
	logger.Info("[Server] Curation appended", "submission_id", id, "user_id", user.UserID)

	if rebuild {
		if _, err := runRebuild(c); err != nil {
			return errorJSON(c, err)
		}
	}
	return c.JSON(http.StatusCreated, curationResponse{Message: "Curation recorded, effective at the next rebuild", SubmissionID: id})
}
