package workerpool

import (
	"context"
	"fmt"

	"github.com/panjf2000/ants/v2"
)

// Pool offloads blocking CPU-bound work (cross-encoder inference, bcrypt)
// so orchestrator goroutines never run it inline.
type Pool struct {
	inner *ants.Pool
}

func New(size int) (*Pool, error) {
	if size <= 0 {
		size = 4
	}
	p, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Pool{inner: p}, nil
}

// Run executes fn on a pool worker and waits for it, honoring ctx
// cancellation while waiting. The submitted fn always runs to completion
// once started.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	if err := p.inner.Submit(func() {
		done <- fn()
	}); err != nil {
		return fmt.Errorf("submit to worker pool: %w", err)
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Release() {
	p.inner.Release()
}
