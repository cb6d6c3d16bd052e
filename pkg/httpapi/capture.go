package httpapi

import (
	"github.com/labstack/echo/v4"

	"github.com/conveyorq/conveyor/pkg/job"
)

// CaptureHTTPContext snapshots the request's headers, route parameters and
// query parameters so a handler can read them later, long after the HTTP
// exchange that submitted the job has completed.
func CaptureHTTPContext(c echo.Context) job.HTTPContext {
	req := c.Request()

	headers := make(map[string][]string, len(req.Header))
	for name, values := range req.Header {
		headers[name] = append([]string(nil), values...)
	}

	names := c.ParamNames()
	routeParams := make(map[string]string, len(names))
	for _, name := range names {
		routeParams[name] = c.Param(name)
	}

	query := req.URL.Query()
	queryParams := make(map[string][]string, len(query))
	for name, values := range query {
		queryParams[name] = append([]string(nil), values...)
	}

	return job.HTTPContext{
		Headers:     headers,
		RouteParams: routeParams,
		QueryParams: queryParams,
	}
}
