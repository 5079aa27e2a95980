package evalgraph

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/semaphore"
)

// cpuSemaphore bounds how many Compute activations run at once, sized to
// the host's available parallelism (spec.md §5: "the engine never runs more
// concurrent CPU-bound activations than the configured worker count"). It is
// released for the duration of a restart's dependency wait, since waiting is
// not CPU work, and logs when acquiring a permit took long enough to suggest
// the pool is saturated.
type cpuSemaphore struct {
	weighted *semaphore.Weighted
	logger   *log.Logger
}

func newCPUSemaphore(workers int, logger *log.Logger) *cpuSemaphore {
	if workers < 1 {
		workers = 1
	}
	return &cpuSemaphore{weighted: semaphore.NewWeighted(int64(workers)), logger: logger}
}

const slowAcquireThreshold = 5 * time.Millisecond

func (s *cpuSemaphore) acquire(ctx context.Context) error {
	start := time.Now()
	if err := s.weighted.Acquire(ctx, 1); err != nil {
		return err
	}
	if elapsed := time.Since(start); elapsed > slowAcquireThreshold && s.logger != nil {
		s.logger.Printf("[TRACE] evalgraph: worker permit acquisition took %s", elapsed)
	}
	return nil
}

func (s *cpuSemaphore) release() {
	s.weighted.Release(1)
}
