package usecase

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// PanicError is returned by Pool.Do when the task panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("usecase: worker panic: %v", e.Value) }

// Pool bounds how many CPU and file bound tasks run at once.
type Pool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewPool returns a pool of size workers. Non-positive sizes use GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
}

func (p *Pool) Size() int { return int(p.size) }

// Do runs task on a worker and waits for it to finish. ctx only bounds the wait
// for a free worker: once started, the task always runs to completion so that
// its side effects are visible to the caller.
func (p *Pool) Do(ctx context.Context, task func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r}
			}
		}()
		done <- task()
	}()
	return <-done
}
