package runtime

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool runs blocking work on at most size goroutines at once.
type Pool struct {
	size     int
	sem      *semaphore.Weighted
	inFlight atomic.Int64
}

// NewPool creates a pool with size workers.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{size: size, sem: semaphore.NewWeighted(int64(size))}
}

// Do waits for a free worker, runs fn on it and waits for the result. When
// ctx ends first Do returns ctx.Err(); fn keeps its worker until it returns
// and sees the same cancelled context. A panic in fn becomes an error.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	p.inFlight.Add(1)
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("runtime: worker panic: %v", r)
			}
			p.inFlight.Add(-1)
			p.sem.Release(1)
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Size is the number of workers.
func (p *Pool) Size() int { return p.size }

// InFlight is the number of busy workers.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }
