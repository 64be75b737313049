package workerpool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/Octogonapus/S3Bench/artifact"
	"github.com/Octogonapus/S3Bench/probe"
	"github.com/Octogonapus/S3Bench/util"
)

// ProbeOutput is printed by the child as the last line of its output.
type ProbeOutput struct {
	ElapsedSec float64
	Error      string
	Artifacts  probe.Artifacts
}

type processWorker struct {
	input *ProcessWorkerInput
}

type ProcessWorkerInput struct {
	Command string   // executable to run. The current executable if empty.
	Args    []string // arguments placed before the serialized task
	Env     []string // environment of the child. Inherited if nil.
}

// NewProcessWorker runs each task as `Command Args... '<task json>'`. The child must call RunChild.
func NewProcessWorker(input *ProcessWorkerInput) (Worker, error) {
	if input.Command == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("can't find the current executable: %w", err)
		}
		input.Command = exe
	}
	return &processWorker{input: input}, nil
}

func (w *processWorker) Execute(ctx context.Context, task probe.TransferTask) probe.TransferResult {
	result := probe.TransferResult{Task: task, Outcome: probe.Failure}

	buf, err := json.Marshal(task)
	if err != nil {
		result.Err = fmt.Errorf("serializing task failed: %w", err)
		return result
	}

	// Not CommandContext: a started transfer is allowed to finish, its timeout lives in the child.
	cmd := exec.Command(w.input.Command, append(append([]string{}, w.input.Args...), string(buf))...)
	cmd.Env = w.input.Env
	// stdout carries only the result line; the child logs to stderr
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, runErr := cmd.Output()

	line := util.LastNonEmptyLine(out)
	output := ProbeOutput{}
	parseErr := json.Unmarshal([]byte(line), &output)
	if parseErr != nil {
		if runErr == nil {
			runErr = parseErr
		}
		slog.Error("probe process failed", slog.String("task", task.String()), slog.String("error", runErr.Error()), slog.String("output", string(out)), slog.String("stderr", stderr.String()))
		result.Err = &probe.TransferError{Task: task, Cause: fmt.Errorf("probe process failed: %w", runErr)}
		return result
	}

	result.Elapsed = time.Duration(output.ElapsedSec * float64(time.Second))
	result.Artifacts = output.Artifacts
	if output.Error != "" {
		result.Err = &probe.TransferError{Task: task, Cause: errors.New(output.Error)}
		return result
	}
	if runErr != nil {
		result.Err = &probe.TransferError{Task: task, Cause: fmt.Errorf("probe process failed: %w", runErr)}
		return result
	}
	result.Outcome = probe.Success
	return result
}

// RunChild is the child side of the process worker. It decodes taskJSON, runs it on a probe
// built by newProbe and writes one ProbeOutput line to w. Transfer failures are reported in the
// output, not the returned error.
func RunChild(ctx context.Context, taskJSON string, newProbe func(artifact.Tracker) (*probe.Probe, error), w io.Writer) error {
	task := probe.TransferTask{}
	err := json.Unmarshal([]byte(taskJSON), &task)
	if err != nil {
		return fmt.Errorf("decoding task failed: %w", err)
	}

	rec := &probe.Recorder{}
	p, err := newProbe(rec)
	if err != nil {
		return fmt.Errorf("creating probe failed: %w", err)
	}

	result := p.Run(ctx, task)
	output := ProbeOutput{
		ElapsedSec: result.Elapsed.Seconds(),
		Artifacts:  rec.Artifacts(),
	}
	if result.Err != nil {
		var terr *probe.TransferError
		if errors.As(result.Err, &terr) {
			output.Error = terr.Cause.Error()
		} else {
			output.Error = result.Err.Error()
		}
	}

	buf, err := json.Marshal(output)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(buf))
	return err
}
