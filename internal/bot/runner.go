package bot

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const panicReportTimeout = 10 * time.Second

// Runner executes detached jobs after the synchronous webhook response has
// been returned. Jobs run on a fresh context so they outlive the inbound
// request, bounded by the execution timeout. Concurrency is capped; excess
// jobs wait their turn.
type Runner struct {
	logger   *slog.Logger
	timeout  time.Duration
	sem      chan struct{}
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

func NewRunner(maxConcurrency int, timeout time.Duration, logger *slog.Logger) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Runner{
		logger:  logger,
		timeout: timeout,
		sem:     make(chan struct{}, maxConcurrency),
	}
}

// Go schedules job on its own goroutine. A returned error is logged; jobs
// deliver their own failure messages. A panic is logged and reported through
// onPanic, which gets its own context budget since the job context may
// already be spent.
func (r *Runner) Go(name string, job func(ctx context.Context) error, onPanic func(ctx context.Context)) {
	r.wg.Add(1)
	r.inFlight.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Add(-1)
		r.sem <- struct{}{}
		defer func() { <-r.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("deferred job panicked", "job", name, "panic", rec)
				if onPanic != nil {
					reportCtx, reportCancel := context.WithTimeout(context.Background(), panicReportTimeout)
					defer reportCancel()
					onPanic(reportCtx)
				}
			}
		}()

		if err := job(ctx); err != nil {
			r.logger.Error("deferred job failed", "job", name, "error", err)
		}
	}()
}

// InFlight reports how many scheduled jobs have not yet finished, counting
// jobs still waiting on the concurrency cap. Surfaced by the health endpoint.
func (r *Runner) InFlight() int64 {
	return r.inFlight.Load()
}

// Drain blocks until every scheduled job has finished or ctx is done. Used
// for graceful shutdown and deterministic tests.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
