package workerpool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Octogonapus/S3Bench/artifact"
	"github.com/Octogonapus/S3Bench/probe"
	"github.com/Octogonapus/S3Bench/storage"
	"github.com/Octogonapus/S3Bench/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helperEnv = "S3BENCH_WANT_HELPER_PROCESS"
const helperBucketEnv = "S3BENCH_HELPER_BUCKET"
const helperTrailingLogEnv = "S3BENCH_HELPER_TRAILING_LOG"

// TestHelperProcess is the child side of the process worker tests.
func TestHelperProcess(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	err := RunChild(context.Background(), os.Args[len(os.Args)-1], func(tracker artifact.Tracker) (*probe.Probe, error) {
		client, err := storage.NewLocalClient(os.Getenv(helperBucketEnv))
		if err != nil {
			return nil, err
		}
		return probe.NewProbe(&probe.ProbeInput{Client: client, Tracker: tracker}), nil
	}, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if os.Getenv(helperTrailingLogEnv) == "1" {
		fmt.Fprintln(os.Stderr, "level=INFO msg=\"closing client\"")
	}
	os.Exit(0)
}

func newHelperWorker(t *testing.T, bucket string, env ...string) Worker {
	t.Helper()
	env = append([]string{helperEnv + "=1", helperBucketEnv + "=" + bucket}, env...)
	w, err := NewProcessWorker(&ProcessWorkerInput{
		Command: os.Args[0],
		Args:    []string{"-test.run=^TestHelperProcess$", "--"},
		Env:     append(os.Environ(), env...),
	})
	require.NoError(t, err)
	return w
}

func TestProcessWorkerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bucket := filepath.Join(dir, "bucket")
	src := filepath.Join(dir, "payload")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte{1}, 1000), 0o644))

	m := artifact.NewManager(nil)
	e := NewExecutor(&ExecutorInput{Worker: newHelperWorker(t, bucket), Tracker: m})

	cfg := storage.DefaultTransferConfig()
	up := []probe.TransferTask{{LocalPath: src, RemoteKey: "run/a", Direction: probe.Upload, Config: cfg}}
	batch, err := e.RunBatch(context.Background(), up, 1)
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.Equal(t, probe.Success, batch.Results[0].Outcome)
	assert.FileExists(t, filepath.Join(bucket, "run", "a"))

	dst := filepath.Join(dir, "download")
	down := []probe.TransferTask{{LocalPath: dst, RemoteKey: "run/a", Direction: probe.Download, Config: cfg}}
	_, err = e.RunBatch(context.Background(), down, 1)
	require.NoError(t, err)
	buf, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Len(t, buf, 1000)

	// artifacts came back from the child and were merged after each batch
	assert.Equal(t, []string{src, dst}, m.Tracked(artifact.Local))
	assert.Equal(t, []string{"run/a"}, m.Tracked(artifact.Remote))
}

func TestProcessWorkerIgnoresChildLogsAfterResult(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0o644))
	w := newHelperWorker(t, filepath.Join(dir, "bucket"), helperTrailingLogEnv+"=1")

	r := w.Execute(context.Background(), probe.TransferTask{LocalPath: src, RemoteKey: "k", Direction: probe.Upload, Config: storage.DefaultTransferConfig()})
	require.NoError(t, r.Err)
	assert.Equal(t, probe.Success, r.Outcome)
	assert.Equal(t, []string{"k"}, r.Artifacts.Remote)
}

func TestProcessWorkerReportsTransferFailure(t *testing.T) {
	dir := t.TempDir()
	w := newHelperWorker(t, filepath.Join(dir, "bucket"))

	task := probe.TransferTask{LocalPath: filepath.Join(dir, "missing"), RemoteKey: "k", Direction: probe.Upload, Config: storage.DefaultTransferConfig()}
	r := w.Execute(context.Background(), task)
	assert.Equal(t, probe.Failure, r.Outcome)
	var terr *probe.TransferError
	require.ErrorAs(t, r.Err, &terr)
	assert.Equal(t, task, terr.Task)
	assert.Contains(t, terr.Error(), "missing")
}

func TestProcessWorkerBadChild(t *testing.T) {
	w, err := NewProcessWorker(&ProcessWorkerInput{Command: "false"})
	require.NoError(t, err)
	r := w.Execute(context.Background(), probe.TransferTask{RemoteKey: "k", Direction: probe.Upload})
	assert.Equal(t, probe.Failure, r.Outcome)
	assert.Error(t, r.Err)
}

func TestRunChildOutput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "payload")
	require.NoError(t, os.WriteFile(src, []byte("abc"), 0o644))
	task, err := json.Marshal(probe.TransferTask{LocalPath: src, RemoteKey: "k", Direction: probe.Upload, Config: storage.DefaultTransferConfig()})
	require.NoError(t, err)

	out := &bytes.Buffer{}
	err = RunChild(context.Background(), string(task), func(tracker artifact.Tracker) (*probe.Probe, error) {
		client, err := storage.NewLocalClient(filepath.Join(dir, "bucket"))
		if err != nil {
			return nil, err
		}
		return probe.NewProbe(&probe.ProbeInput{Client: client, Tracker: tracker}), nil
	}, out)
	require.NoError(t, err)

	output := ProbeOutput{}
	require.NoError(t, json.Unmarshal([]byte(util.LastNonEmptyLine(out.Bytes())), &output))
	assert.Empty(t, output.Error)
	assert.GreaterOrEqual(t, output.ElapsedSec, 0.0)
	assert.Equal(t, probe.Artifacts{Local: []string{src}, Remote: []string{"k"}}, output.Artifacts)

	assert.Error(t, RunChild(context.Background(), "not json", nil, out))
}
