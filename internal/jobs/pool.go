package jobs

import (
	"context"
	"errors"
)

// ErrWorkerQueueFull is returned by Submit when the pool cannot accept more work.
var ErrWorkerQueueFull = errors.New("worker queue full")

// PoolType indicates what kind of work a pool handles.
type PoolType string

const (
	PoolTypeCPU PoolType = "cpu"
)

// PoolStatus reports a pool's current state.
type PoolStatus struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	Workers    int    `json:"workers" yaml:"workers"`
	InFlight   int    `json:"in_flight" yaml:"in_flight"`
	QueueDepth int    `json:"queue_depth" yaml:"queue_depth"`
}

// CPUWorkRequest names a registered task and carries its input.
type CPUWorkRequest struct {
	Task string
	Data any
}

// CPUWorkResult carries a task's output.
type CPUWorkResult struct {
	Data any
}

// WorkResult is what a pool reports back for one unit.
type WorkResult struct {
	WorkUnitID string
	Success    bool
	Error      error
	CPUResult  *CPUWorkResult
}

// WorkUnit is one unit of work submitted to a pool. The result is sent on
// Reply, which must have room for it; the pool never blocks on a reply.
type WorkUnit struct {
	ID         string
	JobID      string
	CPURequest *CPUWorkRequest
	Reply      chan<- WorkResult

	// ctx is the submitter's context. Cancelling it aborts the handler.
	ctx context.Context
}

// WithContext returns unit bound to ctx.
func (u *WorkUnit) WithContext(ctx context.Context) *WorkUnit {
	u.ctx = ctx
	return u
}

// CPUTaskHandler processes a CPU work request and returns a result.
// Implementations should be safe for concurrent use.
type CPUTaskHandler func(ctx context.Context, req *CPUWorkRequest) (*CPUWorkResult, error)
