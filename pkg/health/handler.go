package health

import (
	"net/http"

	"github.com/labstack/echo/v4"

	echofx "github.com/conveyorq/conveyor/pkg/fx/echo"
)

var _ echofx.RouteRegistrar = (*Handler)(nil)

// Handler provides health check HTTP handlers
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// RegisterRoutes implements echofx.RouteRegistrar
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/livez", h.Liveness)
	e.GET("/readyz", h.Readiness)
}

// Liveness responds 200 as long as the process serves requests.
func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, h.checker.LivenessCheck())
}

// Readiness responds 200 when the engine can accept and execute jobs, 503
// otherwise.
func (h *Handler) Readiness(c echo.Context) error {
	resp := h.checker.ReadinessCheck(c.Request().Context())
	code := http.StatusOK
	if resp.Status != StatusOK {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}
