package worker

import (
	"context"
	"sync"
)

// Job is a unit of work executed by the pool.
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of one job.
type Result interface {
	GetError() error
}

// Pool fans a fixed job list out over a bounded set of goroutines. Used for
// batch labeling and evaluation, where every job is known up front.
type Pool struct {
	workers int
}

// NewPool creates a pool with the given number of workers.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{workers: workers}
}

// Run executes all jobs and returns their results in completion order. When
// ctx is canceled, jobs not yet started are dropped; jobs already running
// finish and their results are included.
func (p *Pool) Run(ctx context.Context, jobs []Job) []Result {
	jobc := make(chan Job)
	resc := make(chan Result)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobc {
				resc <- job.Execute(ctx)
			}
		}()
	}

	go func() {
		defer close(jobc)
		for _, job := range jobs {
			select {
			case jobc <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resc)
	}()

	results := make([]Result, 0, len(jobs))
	for r := range resc {
		results = append(results, r)
	}
	return results
}
