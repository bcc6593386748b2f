package blocksync

import (
	"context"
	"sync"
	"time"

	"github.com/mmrnode/mmrnode/internal/validation"
	"github.com/mmrnode/mmrnode/types"
)

type validationJob struct {
	block  *types.Block
	result chan error
}

// validationPool runs body validation on a fixed number of goroutines so
// that the sync loop never validates on the goroutine receiving from the
// peer.
type validationPool struct {
	validator validation.BodyValidator
	metrics   *Metrics

	jobs chan validationJob
	wg   sync.WaitGroup
}

func newValidationPool(validator validation.BodyValidator, workers int, metrics *Metrics) *validationPool {
	if workers < 1 {
		workers = 1
	}
	p := &validationPool{
		validator: validator,
		metrics:   metrics,
		jobs:      make(chan validationJob),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *validationPool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		start := time.Now()
		err := p.validator.ValidateBody(job.block)
		p.metrics.BlockValidationTime.Observe(time.Since(start).Seconds())
		job.result <- err
	}
}

// validate blocks until block is validated or ctx is done. A job already
// handed to a worker runs to completion.
func (p *validationPool) validate(ctx context.Context, block *types.Block) error {
	job := validationJob{block: block, result: make(chan error, 1)}
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-job.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stop waits for the workers to exit. validate must not be called after.
func (p *validationPool) stop() {
	close(p.jobs)
	p.wg.Wait()
}
