package runtime

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/vinodismyname/sheetmind/config"
)

// Limits captures the concurrency and payload guardrails configured for the server.
type Limits struct {
	// Concurrency caps
	MaxConcurrentRequests int
	WorkerPoolSize        int

	// Payload bounds
	MaxCells int

	// Timeouts
	OperationTimeout      time.Duration
	AcquireRequestTimeout time.Duration
	BackgroundJoinTimeout time.Duration
}

// NewLimits initializes Limits with sensible fallbacks when values are unset.
func NewLimits(maxConcurrentRequests, workerPoolSize int) Limits {
	if maxConcurrentRequests <= 0 {
		maxConcurrentRequests = config.DefaultMaxConcurrentRequests
	}
	if workerPoolSize <= 0 {
		workerPoolSize = config.DefaultWorkerPoolSize
	}

	return Limits{
		MaxConcurrentRequests: maxConcurrentRequests,
		WorkerPoolSize:        workerPoolSize,
		MaxCells:              config.DefaultMaxCells,
		OperationTimeout:      config.DefaultOperationTimeout,
		AcquireRequestTimeout: config.DefaultAcquireRequestTimeout,
		BackgroundJoinTimeout: config.DefaultBackgroundJoinTimeout,
	}
}

// LimitsFromConfig maps the runtime section of the configuration.
func LimitsFromConfig(c config.RuntimeConfig) Limits {
	l := NewLimits(c.MaxConcurrentRequests, c.WorkerPoolSize)
	if c.MaxCells > 0 {
		l.MaxCells = c.MaxCells
	}
	if c.OperationTimeout > 0 {
		l.OperationTimeout = c.OperationTimeout
	}
	if c.AcquireTimeout > 0 {
		l.AcquireRequestTimeout = c.AcquireTimeout
	}
	if c.BackgroundJoinTimeout > 0 {
		l.BackgroundJoinTimeout = c.BackgroundJoinTimeout
	}
	return l
}

// Controller coordinates the request semaphore and the worker pool that runs
// blocking completion calls.
type Controller struct {
	limits           Limits
	requestSemaphore *semaphore.Weighted
	workers          *Pool
}

// NewController constructs a Controller backed by weighted semaphores.
func NewController(limits Limits) *Controller {
	return &Controller{
		limits:           limits,
		requestSemaphore: semaphore.NewWeighted(int64(limits.MaxConcurrentRequests)),
		workers:          NewPool(limits.WorkerPoolSize),
	}
}

// AcquireRequest reserves capacity for an incoming request.
func (c *Controller) AcquireRequest(ctx context.Context) error {
	return c.requestSemaphore.Acquire(ctx, 1)
}

// ReleaseRequest frees previously-acquired request capacity.
func (c *Controller) ReleaseRequest() {
	c.requestSemaphore.Release(1)
}

// Workers returns the pool for blocking model calls.
func (c *Controller) Workers() *Pool { return c.workers }

// LimitsSnapshot exposes the configured guardrails for telemetry and discovery.
func (c *Controller) LimitsSnapshot() Limits {
	return c.limits
}
