package workerpool

import (
	"context"
	"fmt"
	"strings"

	"github.com/Octogonapus/S3Bench/probe"
)

// Worker runs one transfer task to completion. The executor decides when and how many run at once.
type Worker interface {
	Execute(ctx context.Context, task probe.TransferTask) probe.TransferResult
}

type WorkerKind string

const (
	// Workers are goroutines in this process sharing one artifact manager.
	Thread WorkerKind = "thread"
	// Each task runs in its own child process and reports its artifacts back.
	Process WorkerKind = "process"
)

var AllWorkersWithDescriptions = map[WorkerKind]string{
	Thread:  "goroutines in this process",
	Process: "one child process per transfer",
}

func ExplainWorkers() string {
	var sb strings.Builder
	i := 0
	for kind, desc := range AllWorkersWithDescriptions {
		sb.WriteString(fmt.Sprintf("\"%s\" (%s)", kind, desc))
		if i < len(AllWorkersWithDescriptions)-1 {
			sb.WriteString(", ")
		}
		i++
	}
	return sb.String()
}

type threadWorker struct {
	probe *probe.Probe
}

// NewThreadWorker runs tasks on the calling goroutine through p. The probe's tracker must be safe for concurrent use.
func NewThreadWorker(p *probe.Probe) Worker {
	return &threadWorker{probe: p}
}

func (w *threadWorker) Execute(ctx context.Context, task probe.TransferTask) probe.TransferResult {
	return w.probe.Run(ctx, task)
}
