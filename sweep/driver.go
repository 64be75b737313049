package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Octogonapus/S3Bench/artifact"
	"github.com/Octogonapus/S3Bench/payload"
	"github.com/Octogonapus/S3Bench/probe"
	"github.com/Octogonapus/S3Bench/report"
	workerpool "github.com/Octogonapus/S3Bench/worker_pool"
	"github.com/schollz/progressbar/v3"
)

// BatchRunner runs a batch of transfers and measures its aggregate duration. *workerpool.Executor satisfies it.
type BatchRunner interface {
	RunBatch(ctx context.Context, tasks []probe.TransferTask, concurrency int) (*workerpool.Batch, error)
}

type Driver struct {
	input *DriverInput
}

type DriverInput struct {
	RunID     string
	Generator payload.Generator
	Executor  BatchRunner
	Artifacts *artifact.Manager
	Recorder  *report.Recorder
	WorkDir   string // payloads and downloads are written here
	KeyPrefix string // remote keys are KeyPrefix/<point>/<n>

	// Drain artifacts after every point. When false, successful points keep their
	// artifacts until the sweep ends. Failed points are always drained right away.
	Clean bool
	// Append a record with Error set for failed points instead of skipping them.
	RecordFailures bool
	// Stop the whole sweep at the first failed point.
	AbortOnFailure bool
	ShowProgress   bool
}

func NewDriver(input *DriverInput) *Driver {
	return &Driver{input: input}
}

// Run measures every point of axes in order and returns the records appended during the run.
// Point failures are reported in the summary; the returned error is only set when the sweep
// could not run or was aborted.
func (d *Driver) Run(ctx context.Context, axes Axes) ([]report.ExperimentRecord, *Summary, error) {
	if err := axes.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid axes: %w", err)
	}

	points := axes.Points()
	summary := &Summary{Points: len(points)}
	records := []report.ExperimentRecord{}
	slog.Info("starting sweep", slog.String("runID", d.input.RunID), slog.Int("points", len(points)))

	var bar *progressbar.ProgressBar
	if d.input.ShowProgress {
		bar = progressbar.Default(int64(len(points)), "Sweeping:")
	}

	var runErr error
	for i, pt := range points {
		rec, err := d.runPoint(ctx, i, pt)
		if err != nil {
			slog.Error("point failed", slog.String("point", pt.String()), slog.String("error", err.Error()))
			summary.Failed = append(summary.Failed, FailedPoint{Point: pt, Err: err})
			if d.input.RecordFailures {
				rec.Error = err.Error()
				records = append(records, d.input.Recorder.Append(ctx, rec))
			}
		} else {
			summary.Succeeded++
			records = append(records, d.input.Recorder.Append(ctx, rec))
			slog.Info("point finished",
				slog.String("point", pt.String()),
				slog.Float64("uploadTimeSec", rec.UploadTimeSec),
				slog.Float64("downloadTimeSec", rec.DownloadTimeSec),
				slog.Float64("uploadMbps", rec.UploadSpeedMbps),
				slog.Float64("downloadMbps", rec.DownloadSpeedMbps),
			)
		}

		if d.input.Clean || err != nil {
			d.cleanup(ctx, summary)
		}
		if bar != nil {
			bar.Add(1)
		}

		if err != nil && d.input.AbortOnFailure {
			summary.Aborted = true
			runErr = fmt.Errorf("sweep aborted at %s: %w", pt, err)
			break
		}
		if ctx.Err() != nil {
			summary.Aborted = true
			runErr = ctx.Err()
			break
		}
	}
	if bar != nil {
		bar.Finish()
	}

	// leftovers from Clean=false or an abort; use a fresh context so cancellation doesn't leak files
	d.cleanup(context.WithoutCancel(ctx), summary)

	slog.Info("finished sweep", slog.Int("succeeded", summary.Succeeded), slog.Int("failed", len(summary.Failed)))
	return records, summary, runErr
}

func (d *Driver) cleanup(ctx context.Context, summary *Summary) {
	outcomes := d.input.Artifacts.DrainAndDelete(ctx)
	failed := artifact.Failed(outcomes)
	summary.CleanupFailures = append(summary.CleanupFailures, failed...)
	if len(outcomes) > 0 {
		slog.Debug("cleaned up artifacts", slog.Int("removed", len(outcomes)-len(failed)), slog.Int("failed", len(failed)))
	}
}

// runPoint measures one point. The returned record always carries the point's values so a
// failure can still be recorded.
func (d *Driver) runPoint(ctx context.Context, index int, pt Point) (report.ExperimentRecord, error) {
	rec := report.ExperimentRecord{
		RunID:          d.input.RunID,
		Trial:          pt.Trial,
		FileSizeMB:     pt.SizeMB,
		MaxConcurrency: pt.MaxConcurrency,
		MaxIOQueue:     pt.MaxIOQueue,
		RandomData:     pt.Mode == payload.Random,
		NumProcess:     pt.Concurrency,
		Timestamp:      time.Now(),
	}

	cfg := pt.TransferConfig()
	uploads := make([]probe.TransferTask, pt.Concurrency)
	downloads := make([]probe.TransferTask, pt.Concurrency)
	for n := range pt.Concurrency {
		name := fmt.Sprintf("p%04d-%dmb-%d", index, pt.SizeMB, n)
		localPath := filepath.Join(d.input.WorkDir, name+".tmp")
		key := fmt.Sprintf("%s/p%04d/%d", d.input.KeyPrefix, index, n)

		d.input.Artifacts.Track(localPath)
		err := d.input.Generator.Generate(localPath, pt.SizeMB, pt.Mode)
		if err != nil {
			return rec, err
		}
		uploads[n] = probe.TransferTask{LocalPath: localPath, RemoteKey: key, Direction: probe.Upload, Config: cfg}
		downloads[n] = probe.TransferTask{LocalPath: localPath + ".download", RemoteKey: key, Direction: probe.Download, Config: cfg}
	}

	upBatch, err := d.input.Executor.RunBatch(ctx, uploads, pt.Concurrency)
	if err != nil {
		return rec, fmt.Errorf("upload batch failed: %w", err)
	}
	if err := batchFailure(upBatch); err != nil {
		return rec, fmt.Errorf("upload batch failed: %w", err)
	}
	rec.UploadTimeSec = upBatch.Duration.Seconds()

	downBatch, err := d.input.Executor.RunBatch(ctx, downloads, pt.Concurrency)
	if err != nil {
		return rec, fmt.Errorf("download batch failed: %w", err)
	}
	if err := batchFailure(downBatch); err != nil {
		return rec, fmt.Errorf("download batch failed: %w", err)
	}
	rec.DownloadTimeSec = downBatch.Duration.Seconds()

	rec.UploadSpeedMbps, err = Throughput(pt.SizeMB, pt.Concurrency, upBatch.Duration)
	if err != nil {
		return rec, err
	}
	rec.DownloadSpeedMbps, err = Throughput(pt.SizeMB, pt.Concurrency, downBatch.Duration)
	if err != nil {
		return rec, err
	}
	return rec, nil
}

// batchFailure reports failures a best-effort batch returned without an error. A point's
// throughput is only meaningful when every transfer in it succeeded.
func batchFailure(b *workerpool.Batch) error {
	failed := b.Failed()
	if len(failed) == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d transfers failed, first: %w", len(failed), len(b.Results), failed[0].Err)
}
