package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Octogonapus/S3Bench/artifact"
	"github.com/Octogonapus/S3Bench/storage"
)

type Direction string

const (
	Upload   Direction = "upload"
	Download Direction = "download"
)

// TransferTask describes one probe invocation. It is serialized as-is for process-isolated workers.
type TransferTask struct {
	LocalPath string
	RemoteKey string
	Direction Direction
	Config    storage.TransferConfig
}

func (t TransferTask) String() string {
	return fmt.Sprintf("%s %s <-> %s", t.Direction, t.LocalPath, t.RemoteKey)
}

type Outcome string

const (
	Success    Outcome = "success"
	Failure    Outcome = "failure"
	NotStarted Outcome = "not_started"
)

// Artifacts lists what one task created, for workers that can't share a Tracker with the parent.
type Artifacts struct {
	Local  []string
	Remote []string
}

type TransferResult struct {
	Task      TransferTask
	Elapsed   time.Duration
	Outcome   Outcome
	Err       error
	Artifacts Artifacts // only filled in by workers that report artifacts instead of tracking them
}

// TransferError wraps a storage client failure with the task that caused it.
type TransferError struct {
	Task  TransferTask
	Cause error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s of %s failed: %s", e.Task.Direction, e.Task.RemoteKey, e.Cause)
}

func (e *TransferError) Unwrap() error {
	return e.Cause
}

// Probe times single transfers against a storage client.
type Probe struct {
	input *ProbeInput
}

type ProbeInput struct {
	Client  storage.Client
	Tracker artifact.Tracker
	Timeout time.Duration // per transfer call, no limit if zero
}

func NewProbe(input *ProbeInput) *Probe {
	return &Probe{input: input}
}

// Upload sends localPath to remoteKey and returns how long the client call took.
func (p *Probe) Upload(ctx context.Context, localPath string, remoteKey string, cfg storage.TransferConfig) (time.Duration, error) {
	task := TransferTask{LocalPath: localPath, RemoteKey: remoteKey, Direction: Upload, Config: cfg}
	p.input.Tracker.Track(localPath)

	elapsed, err := p.timed(ctx, func(ctx context.Context) error {
		return p.input.Client.Put(ctx, localPath, remoteKey, cfg)
	})
	if err != nil {
		return elapsed, &TransferError{Task: task, Cause: err}
	}
	p.input.Tracker.TrackRemote(remoteKey)
	return elapsed, nil
}

// Download fetches remoteKey into localPath and returns how long the client call took.
func (p *Probe) Download(ctx context.Context, remoteKey string, localPath string, cfg storage.TransferConfig) (time.Duration, error) {
	task := TransferTask{LocalPath: localPath, RemoteKey: remoteKey, Direction: Download, Config: cfg}
	// a failed download can still leave a partial file
	p.input.Tracker.Track(localPath)

	elapsed, err := p.timed(ctx, func(ctx context.Context) error {
		return p.input.Client.Get(ctx, remoteKey, localPath, cfg)
	})
	if err != nil {
		return elapsed, &TransferError{Task: task, Cause: err}
	}
	return elapsed, nil
}

// Run executes task and reports its outcome.
func (p *Probe) Run(ctx context.Context, task TransferTask) TransferResult {
	var elapsed time.Duration
	var err error
	switch task.Direction {
	case Upload:
		elapsed, err = p.Upload(ctx, task.LocalPath, task.RemoteKey, task.Config)
	case Download:
		elapsed, err = p.Download(ctx, task.RemoteKey, task.LocalPath, task.Config)
	default:
		err = &TransferError{Task: task, Cause: fmt.Errorf("unknown direction: %s", task.Direction)}
	}

	result := TransferResult{Task: task, Elapsed: elapsed, Outcome: Success}
	if err != nil {
		result.Outcome = Failure
		result.Err = err
		slog.Debug("transfer failed", slog.String("task", task.String()), slog.String("error", err.Error()))
	}
	return result
}

func (p *Probe) timed(ctx context.Context, call func(context.Context) error) (time.Duration, error) {
	if p.input.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.input.Timeout)
		defer cancel()
	}
	tstart := time.Now()
	err := call(ctx)
	return time.Since(tstart), err
}

// Recorder is a Tracker that only remembers what was tracked. Used where the artifact
// manager lives in another process.
type Recorder struct {
	mu        sync.Mutex
	artifacts Artifacts
}

func (r *Recorder) Track(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts.Local = append(r.artifacts.Local, path)
}

func (r *Recorder) TrackRemote(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artifacts.Remote = append(r.artifacts.Remote, key)
}

// Artifacts returns a copy of everything tracked so far.
func (r *Recorder) Artifacts() Artifacts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Artifacts{
		Local:  append([]string{}, r.artifacts.Local...),
		Remote: append([]string{}, r.artifacts.Remote...),
	}
}
