package runner

import (
	"sync"

	"github.com/crucible-bench/crucible/internal/result"
)

// Job produces the records for one (variant, provider) pair.
type Job func() ([]result.Record, error)

// RunPool executes jobs with at most maxWorkers concurrently. Batches and
// errors come back indexed by job, so record ordering stays deterministic
// however the workers interleave. A failed job never stops its siblings.
func RunPool(maxWorkers int, jobs []Job) ([][]result.Record, []error) {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	batches := make([][]result.Record, len(jobs))
	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxWorkers)

	for i, job := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, j Job) {
			defer wg.Done()
			defer func() { <-sem }()
			batches[i], errs[i] = j()
		}(i, job)
	}
	wg.Wait()
	return batches, errs
}
