package registry

import (
	"github.com/conveyorq/conveyor/pkg/job"
)

// Context carries a typed request plus the HTTP metadata captured when the
// job was submitted. Handlers see a snapshot, never the live request: the
// submitting connection is usually long gone by the time a handler runs.
type Context[Req any] struct {
	Request Req
	Job     *job.Job
}

// Header returns the first captured value for the named header, or "".
func (c *Context[Req]) Header(name string) string {
	for _, v := range c.Job.HTTPContext.Headers[name] {
		return v
	}
	return ""
}

// RouteParam returns the captured route parameter, or "".
func (c *Context[Req]) RouteParam(name string) string {
	return c.Job.HTTPContext.RouteParams[name]
}

// QueryParam returns the first captured query value for the key, or "".
func (c *Context[Req]) QueryParam(name string) string {
	for _, v := range c.Job.HTTPContext.QueryParams[name] {
		return v
	}
	return ""
}
