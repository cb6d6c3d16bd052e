// Package httpapi exposes the engine over HTTP: one submit endpoint per
// registered job name and a status endpoint keyed by job id. Submission is
// fire-and-acknowledge; the response carries the job's identity and current
// state, never its eventual result.
package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"

	"github.com/conveyorq/conveyor/pkg/job"
	"github.com/conveyorq/conveyor/pkg/manager"
	"github.com/conveyorq/conveyor/pkg/registry"
	"github.com/conveyorq/conveyor/pkg/store"
)

var log = logging.Logger("httpapi")

// API registers the job endpoints on an echo instance.
type API struct {
	manager  *manager.Manager
	registry *registry.Registry
}

// NewAPI creates the HTTP surface over a manager and its handler registry.
func NewAPI(m *manager.Manager, r *registry.Registry) *API {
	return &API{manager: m, registry: r}
}

// RegisterRoutes mounts POST /jobs/<name> for every registered handler and
// GET /jobs/:id for status queries.
func (a *API) RegisterRoutes(e *echo.Echo) {
	group := e.Group("/jobs")
	group.GET("/:id", a.getJob)
	for _, name := range a.registry.Names() {
		group.POST("/"+name, a.SubmitHandler(name))
		log.Debugw("registered submit route", "name", name)
	}
}

// SubmitHandler returns the submit endpoint for one job name. The request
// body becomes the job payload verbatim; headers, route params and query
// params are snapshotted for the handler.
func (a *API) SubmitHandler(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		payload, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    job.CodeInvalidJob,
				Message: "reading request body: " + err.Error(),
			})
		}

		j, err := a.manager.Submit(c.Request().Context(), name, payload, CaptureHTTPContext(c))
		if err != nil {
			log.Errorw("job submission failed", "name", name, "error", err)
			return c.JSON(http.StatusInternalServerError, ErrorResponse{
				Code:    job.CodeStoreError,
				Message: "failed to submit job",
			})
		}
		return c.JSON(http.StatusAccepted, NewJobResponse(j))
	}
}

func (a *API) getJob(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil || id == uuid.Nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    job.CodeInvalidJobID,
			Message: "job id must be a non-nil uuid",
		})
	}

	j, err := a.manager.GetJobByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, ErrorResponse{
				Code:    job.CodeNotFound,
				Message: "no job with id " + id.String(),
			})
		}
		log.Errorw("job lookup failed", "job", id, "error", err)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Code:    job.CodeStoreError,
			Message: "failed to load job",
		})
	}
	return c.JSON(http.StatusOK, NewJobResponse(j))
}
