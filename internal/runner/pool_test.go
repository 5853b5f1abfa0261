package runner_test

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crucible-bench/crucible/internal/result"
	"github.com/crucible-bench/crucible/internal/runner"
)

func TestRunPoolOrdering(t *testing.T) {
	jobs := make([]runner.Job, 5)
	for i := range jobs {
		i := i
		jobs[i] = func() ([]result.Record, error) {
			if i == 2 {
				return nil, errors.New("boom")
			}
			return []result.Record{{Variant: fmt.Sprintf("v%d", i)}}, nil
		}
	}

	batches, errs := runner.RunPool(3, jobs)
	if len(batches) != 5 || len(errs) != 5 {
		t.Fatalf("expected 5 batches and errors, got %d/%d", len(batches), len(errs))
	}
	for i := range batches {
		if i == 2 {
			if errs[i] == nil {
				t.Error("expected error for job 2")
			}
			continue
		}
		if errs[i] != nil {
			t.Errorf("job %d: unexpected error %v", i, errs[i])
		}
		if len(batches[i]) != 1 || batches[i][0].Variant != fmt.Sprintf("v%d", i) {
			t.Errorf("job %d: batch out of order: %+v", i, batches[i])
		}
	}
}

func TestRunPoolBoundsConcurrency(t *testing.T) {
	var current, peak int32
	jobs := make([]runner.Job, 8)
	for i := range jobs {
		jobs[i] = func() ([]result.Record, error) {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return nil, nil
		}
	}

	runner.RunPool(2, jobs)
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Errorf("expected at most 2 concurrent jobs, saw %d", p)
	}
}

func TestRunPoolZeroWorkers(t *testing.T) {
	ran := false
	batches, errs := runner.RunPool(0, []runner.Job{
		func() ([]result.Record, error) { ran = true; return nil, nil },
	})
	if !ran || len(batches) != 1 || errs[0] != nil {
		t.Error("pool should clamp to one worker and still run the job")
	}
}
