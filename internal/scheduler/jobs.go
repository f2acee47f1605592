package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Job is a periodic housekeeping task that runs while the driver is running.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

func validateJobs(jobs []Job) error {
	for _, j := range jobs {
		if j.Interval <= 0 {
			return fmt.Errorf("job %q: interval must be positive", j.Name)
		}
		if j.Run == nil {
			return fmt.Errorf("job %q: no run func", j.Name)
		}
	}
	return nil
}

type jobRunner struct {
	stop chan struct{}
	wg   sync.WaitGroup
}

func startJobs(ctx context.Context, clock Clock, jobs []Job, logger zerolog.Logger) *jobRunner {
	r := &jobRunner{stop: make(chan struct{})}
	for _, j := range jobs {
		r.wg.Add(1)
		go r.run(ctx, clock, j, logger)
	}
	return r
}

func (r *jobRunner) run(ctx context.Context, clock Clock, job Job, logger zerolog.Logger) {
	defer r.wg.Done()
	for {
		t := clock.NewTimer(job.Interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-r.stop:
			t.Stop()
			return
		case <-t.C():
			logger.Debug().Str("job", job.Name).Msg("running periodic job")
			job.Run(ctx)
		}
	}
}

// halt stops every job and waits for in-flight runs.
func (r *jobRunner) halt() {
	close(r.stop)
	r.wg.Wait()
}
