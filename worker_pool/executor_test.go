package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Octogonapus/S3Bench/artifact"
	"github.com/Octogonapus/S3Bench/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeWorker sleeps for latency(task) and fails the tasks listed in fail.
type fakeWorker struct {
	latency func(probe.TransferTask) time.Duration
	fail    map[string]bool
	panics  map[string]bool
	report  bool // report artifacts in the result instead of tracking them

	running    atomic.Int32
	maxRunning atomic.Int32
	mu         sync.Mutex
	executed   []string
}

func (w *fakeWorker) Execute(ctx context.Context, task probe.TransferTask) probe.TransferResult {
	n := w.running.Add(1)
	defer w.running.Add(-1)
	for {
		m := w.maxRunning.Load()
		if n <= m || w.maxRunning.CompareAndSwap(m, n) {
			break
		}
	}
	w.mu.Lock()
	w.executed = append(w.executed, task.RemoteKey)
	w.mu.Unlock()

	if w.panics[task.RemoteKey] {
		var m map[string]int
		m[task.RemoteKey]++
	}

	d := time.Duration(0)
	if w.latency != nil {
		d = w.latency(task)
	}
	time.Sleep(d)

	r := probe.TransferResult{Task: task, Elapsed: d, Outcome: probe.Success}
	if w.report {
		r.Artifacts = probe.Artifacts{Local: []string{task.LocalPath}, Remote: []string{task.RemoteKey}}
	}
	if w.fail[task.RemoteKey] {
		r.Outcome = probe.Failure
		r.Err = &probe.TransferError{Task: task, Cause: errors.New("boom")}
	}
	return r
}

func makeTasks(n int) []probe.TransferTask {
	tasks := make([]probe.TransferTask, n)
	for i := range tasks {
		tasks[i] = probe.TransferTask{
			LocalPath: fmt.Sprintf("/tmp/p-%d", i),
			RemoteKey: fmt.Sprintf("k-%d", i),
			Direction: probe.Upload,
		}
	}
	return tasks
}

func TestResultsPreserveInputOrder(t *testing.T) {
	for _, concurrency := range []int{1, 3, 8, 0} {
		tasks := makeTasks(8)
		// later tasks finish first
		w := &fakeWorker{latency: func(task probe.TransferTask) time.Duration {
			var i int
			fmt.Sscanf(task.RemoteKey, "k-%d", &i)
			return time.Duration(8-i) * 3 * time.Millisecond
		}}
		e := NewExecutor(&ExecutorInput{Worker: w})

		batch, err := e.RunBatch(context.Background(), tasks, concurrency)
		require.NoError(t, err)
		require.Len(t, batch.Results, len(tasks))
		for i, r := range batch.Results {
			assert.Equal(t, tasks[i], r.Task, "concurrency=%d", concurrency)
			assert.Equal(t, probe.Success, r.Outcome)
		}
	}
}

func TestAggregateDurationIsWallClockSpan(t *testing.T) {
	const k = 10
	const d = 100 * time.Millisecond
	w := &fakeWorker{latency: func(probe.TransferTask) time.Duration { return d }}
	e := NewExecutor(&ExecutorInput{Worker: w})

	batch, err := e.RunBatch(context.Background(), makeTasks(k), 0)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, batch.Duration, d)
	// nowhere near k*d
	assert.Less(t, batch.Duration, 3*d)
	assert.Equal(t, int32(k), w.maxRunning.Load())
}

func TestConcurrencyIsBounded(t *testing.T) {
	w := &fakeWorker{latency: func(probe.TransferTask) time.Duration { return 10 * time.Millisecond }}
	e := NewExecutor(&ExecutorInput{Worker: w})

	batch, err := e.RunBatch(context.Background(), makeTasks(12), 3)
	require.NoError(t, err)
	assert.Len(t, batch.Results, 12)
	assert.LessOrEqual(t, w.maxRunning.Load(), int32(3))
	// 12 tasks, 3 at a time, 10ms each
	assert.GreaterOrEqual(t, batch.Duration, 40*time.Millisecond)
}

func TestFailFastSkipsUnstartedTasks(t *testing.T) {
	tasks := makeTasks(6)
	w := &fakeWorker{fail: map[string]bool{"k-1": true}}
	e := NewExecutor(&ExecutorInput{Worker: w, Policy: FailFast})

	// one worker makes the start order deterministic
	batch, err := e.RunBatch(context.Background(), tasks, 1)
	var berr *BatchError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, 2, berr.Started)
	assert.Equal(t, 6, berr.Total)
	var terr *probe.TransferError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "k-1", terr.Task.RemoteKey)

	require.Len(t, batch.Results, 2)
	assert.Equal(t, probe.Success, batch.Results[0].Outcome)
	assert.Equal(t, probe.Failure, batch.Results[1].Outcome)
	assert.Equal(t, []string{"k-0", "k-1"}, w.executed)
}

func TestBestEffortRunsEverything(t *testing.T) {
	tasks := makeTasks(5)
	w := &fakeWorker{fail: map[string]bool{"k-0": true, "k-3": true}}
	e := NewExecutor(&ExecutorInput{Worker: w, Policy: BestEffort})

	batch, err := e.RunBatch(context.Background(), tasks, 2)
	require.NoError(t, err)
	require.Len(t, batch.Results, 5)
	failed := batch.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "k-0", failed[0].Task.RemoteKey)
	assert.Equal(t, "k-3", failed[1].Task.RemoteKey)
}

func TestReportedArtifactsAreMerged(t *testing.T) {
	m := artifact.NewManager(nil)
	w := &fakeWorker{report: true, fail: map[string]bool{"k-0": true}}
	e := NewExecutor(&ExecutorInput{Worker: w, Tracker: m, Policy: FailFast})

	_, err := e.RunBatch(context.Background(), makeTasks(3), 1)
	require.Error(t, err)
	// only the task that started reported anything
	assert.Equal(t, []string{"/tmp/p-0"}, m.Tracked(artifact.Local))
	assert.Equal(t, []string{"k-0"}, m.Tracked(artifact.Remote))
}

func TestEmptyBatch(t *testing.T) {
	e := NewExecutor(&ExecutorInput{Worker: &fakeWorker{}})
	batch, err := e.RunBatch(context.Background(), nil, 4)
	require.NoError(t, err)
	assert.Empty(t, batch.Results)
}

func TestCancelledContextStartsNothing(t *testing.T) {
	w := &fakeWorker{}
	e := NewExecutor(&ExecutorInput{Worker: w})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := e.RunBatch(ctx, makeTasks(3), 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, batch.Results)
	assert.Empty(t, w.executed)
}

func TestRateLimit(t *testing.T) {
	w := &fakeWorker{}
	e := NewExecutor(&ExecutorInput{Worker: w, RateLimit: 50})

	batch, err := e.RunBatch(context.Background(), makeTasks(4), 0)
	require.NoError(t, err)
	assert.Len(t, batch.Results, 4)
	// burst of one, then 20ms between starts
	assert.GreaterOrEqual(t, batch.Duration, 50*time.Millisecond)
}

func TestPanickingWorkerFailsTheTask(t *testing.T) {
	t.Run("fail fast", func(t *testing.T) {
		w := &fakeWorker{panics: map[string]bool{"k-1": true}}
		e := NewExecutor(&ExecutorInput{Worker: w, Policy: FailFast})

		batch, err := e.RunBatch(context.Background(), makeTasks(3), 1)
		var berr *BatchError
		require.ErrorAs(t, err, &berr)
		var terr *probe.TransferError
		require.ErrorAs(t, err, &terr)
		assert.Equal(t, "k-1", terr.Task.RemoteKey)

		require.Len(t, batch.Results, 2)
		assert.Equal(t, probe.Success, batch.Results[0].Outcome)
		assert.Equal(t, probe.Failure, batch.Results[1].Outcome)
		assert.Equal(t, "k-1", batch.Results[1].Task.RemoteKey)
	})

	t.Run("best effort", func(t *testing.T) {
		w := &fakeWorker{panics: map[string]bool{"k-1": true}}
		e := NewExecutor(&ExecutorInput{Worker: w, Policy: BestEffort})

		batch, err := e.RunBatch(context.Background(), makeTasks(3), 1)
		require.NoError(t, err)
		require.Len(t, batch.Results, 3)
		for i, r := range batch.Results {
			assert.Equal(t, fmt.Sprintf("k-%d", i), r.Task.RemoteKey)
		}
		failed := batch.Failed()
		require.Len(t, failed, 1)
		assert.Equal(t, "k-1", failed[0].Task.RemoteKey)
		assert.ErrorContains(t, failed[0].Err, "worker panicked")
		assert.Equal(t, probe.Success, batch.Results[2].Outcome)
	})
}
