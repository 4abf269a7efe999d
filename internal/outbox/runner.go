package outbox

import (
	"context"
	"sync"
)

// Runner owns the publisher and sweeper goroutines. They fail independently:
// a broken sweep never stalls publishing.
type Runner struct {
	processor *Processor
	sweeper   *Sweeper
	wg        sync.WaitGroup
}

// NewRunner accepts a nil sweeper.
func NewRunner(processor *Processor, sweeper *Sweeper) *Runner {
	return &Runner{processor: processor, sweeper: sweeper}
}

func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.processor.Run(ctx)
	}()
	if r.sweeper != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.sweeper.Run(ctx)
		}()
	}
}

// Wait blocks until both loops have returned after ctx is cancelled.
func (r *Runner) Wait() {
	r.wg.Wait()
}
