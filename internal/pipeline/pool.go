package pipeline

import "context"

// WorkerPool bounds CPU-bound work (feature extraction, neural inference)
// across concurrent sessions so it never competes with network-bound
// stages for goroutines.
type WorkerPool struct {
	sem chan struct{}
}

// NewWorkerPool creates a pool admitting at most size concurrent tasks.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{sem: make(chan struct{}, size)}
}

// Do runs fn once a slot frees up. It returns the context error without
// running fn when the caller's deadline expires while queued.
func (p *WorkerPool) Do(ctx context.Context, fn func()) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()
	fn()
	return nil
}
