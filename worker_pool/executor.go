package workerpool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Octogonapus/S3Bench/artifact"
	"github.com/Octogonapus/S3Bench/probe"
	"github.com/alitto/pond"
	"golang.org/x/time/rate"
)

// Policy decides what one failed task does to the rest of its batch.
type Policy string

const (
	// The first failure stops tasks that haven't started yet. Started tasks finish.
	FailFast Policy = "fail_fast"
	// Every task runs; failures are reported per task.
	BestEffort Policy = "best_effort"
)

type Batch struct {
	// Wall-clock span from the first dispatch to the completion of the last task.
	// Throughput is computed against this, not the sum of per-task durations.
	Duration time.Duration
	Results  []probe.TransferResult
}

// Failed returns the results of tasks that ran and failed.
func (b *Batch) Failed() []probe.TransferResult {
	out := []probe.TransferResult{}
	for _, r := range b.Results {
		if r.Outcome == probe.Failure {
			out = append(out, r)
		}
	}
	return out
}

// BatchError is returned by a fail-fast batch that had a failure.
type BatchError struct {
	Err     error // the first failure
	Started int
	Total   int
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch aborted after %d of %d tasks started: %s", e.Started, e.Total, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

type Executor struct {
	input   *ExecutorInput
	limiter *rate.Limiter
}

type ExecutorInput struct {
	Worker Worker
	Policy Policy // FailFast if empty
	// Receives artifacts that workers report in their results. May be nil when
	// the worker tracks artifacts itself.
	Tracker   artifact.Tracker
	RateLimit float64 // task starts per second, unlimited if zero
}

func NewExecutor(input *ExecutorInput) *Executor {
	if input.Policy == "" {
		input.Policy = FailFast
	}
	e := &Executor{input: input}
	if input.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(input.RateLimit), 1)
	}
	return e
}

// RunBatch runs tasks with at most concurrency running at once (one per task if concurrency <= 0).
// Results are in input order. Under FailFast a failure returns a *BatchError and only the results
// of tasks that started.
func (e *Executor) RunBatch(ctx context.Context, tasks []probe.TransferTask, concurrency int) (*Batch, error) {
	if len(tasks) == 0 {
		return &Batch{Results: []probe.TransferResult{}}, nil
	}
	workers := concurrency
	if workers <= 0 || workers > len(tasks) {
		workers = len(tasks)
	}

	// dispatchCtx only gates starting new tasks; started transfers get ctx and run to completion
	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	results := make([]probe.TransferResult, len(tasks))
	var firstErr error
	var failOnce sync.Once

	pool := pond.New(workers, len(tasks), pond.MinWorkers(workers))
	tstart := time.Now()
	for i, task := range tasks {
		pool.Submit(func() {
			if !e.mayStart(dispatchCtx) {
				results[i] = probe.TransferResult{Task: task, Outcome: probe.NotStarted}
				return
			}
			r := e.execute(ctx, task)
			results[i] = r
			if r.Outcome == probe.Failure && e.input.Policy == FailFast {
				failOnce.Do(func() {
					firstErr = r.Err
					stopDispatch()
				})
			}
		})
	}
	pool.StopAndWait()
	batch := &Batch{Duration: time.Since(tstart)}

	started := make([]probe.TransferResult, 0, len(results))
	for _, r := range results {
		if r.Outcome == probe.NotStarted {
			continue
		}
		e.merge(r.Artifacts)
		started = append(started, r)
	}

	if firstErr != nil {
		batch.Results = started
		slog.Debug("batch aborted", slog.Int("started", len(started)), slog.Int("total", len(tasks)), slog.String("error", firstErr.Error()))
		return batch, &BatchError{Err: firstErr, Started: len(started), Total: len(tasks)}
	}
	if err := ctx.Err(); err != nil {
		batch.Results = started
		return batch, &BatchError{Err: err, Started: len(started), Total: len(tasks)}
	}
	batch.Results = results
	return batch, nil
}

// execute runs task on the worker. A panicking worker fails the task instead of leaving an empty result.
func (e *Executor) execute(ctx context.Context, task probe.TransferTask) (r probe.TransferResult) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("worker panicked", slog.String("task", task.String()), slog.String("panic", fmt.Sprint(p)))
			r = probe.TransferResult{
				Task:    task,
				Outcome: probe.Failure,
				Err:     &probe.TransferError{Task: task, Cause: fmt.Errorf("worker panicked: %v", p)},
			}
		}
	}()
	return e.input.Worker.Execute(ctx, task)
}

func (e *Executor) mayStart(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if e.limiter != nil {
		return e.limiter.Wait(ctx) == nil
	}
	return true
}

func (e *Executor) merge(a probe.Artifacts) {
	if e.input.Tracker == nil {
		return
	}
	for _, path := range a.Local {
		e.input.Tracker.Track(path)
	}
	for _, key := range a.Remote {
		e.input.Tracker.TrackRemote(key)
	}
}
