package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// RunBatch runs the pipeline once per input with at most concurrency runs
// in flight, each with its own execution context. Results are returned in
// input order. A cancelled parent context marks the unstarted remainder
// CANCELLED without abandoning runs already in flight.
func (p *Pipeline) RunBatch(ctx context.Context, inputs []interface{}, concurrency int64) []Result {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]Result, len(inputs))
	sem := semaphore.NewWeighted(concurrency)

	for i, input := range inputs {
		if err := sem.Acquire(ctx, 1); err != nil {
			for j := i; j < len(inputs); j++ {
				results[j] = Result{
					Pipeline: p.name,
					Status:   StatusCancelled,
					Err:      err,
				}
			}
			break
		}
		go func(i int, input interface{}) {
			defer sem.Release(1)
			results[i] = p.Run(ctx, input)
		}(i, input)
	}

	// Drain to make sure every launched run has finished.
	_ = sem.Acquire(context.Background(), concurrency)
	sem.Release(concurrency)
	return results
}
