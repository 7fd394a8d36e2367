package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// CPUWorkerPool runs CPU-bound tasks on a fixed number of goroutines.
// All workers share a single queue, so load balances through channel
// semantics. One pool is shared by every search in a run, which keeps the
// total number of concurrent renders bounded by the worker count.
type CPUWorkerPool struct {
	name        string
	logger      *slog.Logger
	workerCount int

	queue chan *WorkUnit

	handlers map[string]CPUTaskHandler
	mu       sync.RWMutex

	inFlight atomic.Int32
}

// CPUWorkerPoolConfig configures a new CPU worker pool.
type CPUWorkerPoolConfig struct {
	Name        string
	Logger      *slog.Logger
	WorkerCount int // Number of worker goroutines (default 1)
	QueueSize   int // Queue size (default 1024)
}

// NewCPUWorkerPool creates a new CPU worker pool.
func NewCPUWorkerPool(cfg CPUWorkerPoolConfig) *CPUWorkerPool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	name := cfg.Name
	if name == "" {
		name = "cpu"
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}

	return &CPUWorkerPool{
		name:        name,
		logger:      logger.With("pool", name, "workers", workerCount),
		workerCount: workerCount,
		queue:       make(chan *WorkUnit, queueSize),
		handlers:    make(map[string]CPUTaskHandler),
	}
}

// RegisterHandler registers a handler for a task type.
// Must be called before Start.
func (p *CPUWorkerPool) RegisterHandler(taskName string, handler CPUTaskHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[taskName] = handler
	p.logger.Debug("registered CPU task handler", "task", taskName)
}

// Name returns the pool name.
func (p *CPUWorkerPool) Name() string {
	return p.name
}

// Workers returns the number of worker goroutines.
func (p *CPUWorkerPool) Workers() int {
	return p.workerCount
}

// Start launches the workers and blocks until ctx is cancelled.
func (p *CPUWorkerPool) Start(ctx context.Context) {
	p.logger.Debug("cpu pool starting")

	var wg sync.WaitGroup
	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.worker(ctx, id)
		}(i)
	}

	<-ctx.Done()
	wg.Wait()
	p.logger.Debug("cpu pool stopped")
}

func (p *CPUWorkerPool) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return

		case unit := <-p.queue:
			p.inFlight.Add(1)
			result := p.process(ctx, unit)
			p.inFlight.Add(-1)
			p.logger.Debug("cpu worker completed unit", "worker_id", id, "unit_id", unit.ID, "success", result.Success)
			if unit.Reply != nil {
				select {
				case unit.Reply <- result:
				default:
					p.logger.Warn("dropping result, reply channel full", "unit_id", unit.ID, "job_id", unit.JobID)
				}
			}
		}
	}
}

// Submit adds a work unit to the queue without blocking.
func (p *CPUWorkerPool) Submit(unit *WorkUnit) error {
	select {
	case p.queue <- unit:
		return nil
	default:
		p.logger.Warn("cpu pool queue full", "unit_id", unit.ID, "job_id", unit.JobID)
		return fmt.Errorf("%w: %s", ErrWorkerQueueFull, p.name)
	}
}

// Enqueue adds a work unit to the queue, waiting for room until ctx is done.
func (p *CPUWorkerPool) Enqueue(ctx context.Context, unit *WorkUnit) error {
	select {
	case p.queue <- unit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns current pool status.
func (p *CPUWorkerPool) Status() PoolStatus {
	return PoolStatus{
		Name:       p.name,
		Type:       string(PoolTypeCPU),
		Workers:    p.workerCount,
		InFlight:   int(p.inFlight.Load()),
		QueueDepth: len(p.queue),
	}
}

// process executes a CPU work unit.
func (p *CPUWorkerPool) process(poolCtx context.Context, unit *WorkUnit) WorkResult {
	result := WorkResult{
		WorkUnitID: unit.ID,
	}

	ctx := poolCtx
	if unit.ctx != nil {
		ctx = unit.ctx
	}
	if err := ctx.Err(); err != nil {
		result.Error = err
		return result
	}

	if unit.CPURequest == nil {
		result.Error = fmt.Errorf("CPU work unit missing CPURequest")
		return result
	}

	p.mu.RLock()
	handler, ok := p.handlers[unit.CPURequest.Task]
	p.mu.RUnlock()

	if !ok {
		result.Error = fmt.Errorf("no handler registered for CPU task: %s", unit.CPURequest.Task)
		return result
	}

	cpuResult, err := handler(ctx, unit.CPURequest)
	if err != nil {
		result.Error = err
		p.logger.Debug("CPU work unit failed", "unit_id", unit.ID, "task", unit.CPURequest.Task, "error", err)
		return result
	}

	result.Success = true
	result.CPUResult = cpuResult
	return result
}
