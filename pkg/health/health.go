// Package health exposes liveness and readiness probes for the engine. The
// process is live once it responds at all; it is ready once the job store is
// reachable and the worker loops have started.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/conveyorq/conveyor/pkg/build"
)

// Status represents the health status
type Status string

const (
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Response represents a health check response
type Response struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Checks    []Check   `json:"checks,omitempty"`
}

// Check represents an individual health check result
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
}

// StoreProbe reports whether the job store is reachable. Stores without a
// connectivity notion (in-memory) use a nil probe and always pass.
type StoreProbe func(ctx context.Context) error

// Checker provides health check functionality
type Checker struct {
	probe StoreProbe

	mu    sync.RWMutex
	ready bool
}

// NewChecker creates a health checker with an optional store probe.
func NewChecker(probe StoreProbe) *Checker {
	return &Checker{probe: probe}
}

// SetReady sets the readiness state. The engine flips it once the worker
// loops are running.
func (c *Checker) SetReady(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// IsReady returns the readiness state.
func (c *Checker) IsReady() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// LivenessCheck performs a liveness check.
func (c *Checker) LivenessCheck() Response {
	return Response{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
		Version:   build.Version,
	}
}

// ReadinessCheck performs a readiness check: the worker must have started and
// the store probe, when present, must pass.
func (c *Checker) ReadinessCheck(ctx context.Context) Response {
	status := StatusOK
	checks := []Check{{Name: "worker", Status: StatusOK}}
	if !c.IsReady() {
		status = StatusFailed
		checks[0].Status = StatusFailed
	}

	if c.probe != nil {
		storeStatus := StatusOK
		if err := c.probe(ctx); err != nil {
			status = StatusFailed
			storeStatus = StatusFailed
		}
		checks = append(checks, Check{Name: "store", Status: storeStatus})
	}

	return Response{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   build.Version,
		Checks:    checks,
	}
}
