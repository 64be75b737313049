package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Octogonapus/S3Bench/artifact"
	"github.com/Octogonapus/S3Bench/config"
	"github.com/Octogonapus/S3Bench/payload"
	"github.com/Octogonapus/S3Bench/probe"
	"github.com/Octogonapus/S3Bench/report"
	"github.com/Octogonapus/S3Bench/sink"
	"github.com/Octogonapus/S3Bench/sweep"
	"github.com/Octogonapus/S3Bench/util"
	workerpool "github.com/Octogonapus/S3Bench/worker_pool"
	"github.com/google/uuid"
)

const version = "0.2.0"

// Hidden subcommand the process worker runs its children with.
const probeCommand = "probe"

func main() {
	if len(os.Args) > 1 && os.Args[1] == probeCommand {
		os.Exit(runProbe(os.Args[2:]))
	}
	os.Exit(run())
}

// run executes a sweep and returns the exit code. Setup errors panic.
func run() int {
	configPath := flag.String("config", "", "The JSON run configuration file. Required.")
	logLevel := flag.String("log-level", "info", "One of: debug, info, warn, error.")
	showProgress := flag.Bool("progress", true, "Show a progress bar while sweeping.")
	flag.Parse()

	setUpLogger(os.Stdout, *logLevel)

	if *configPath == "" {
		panic(fmt.Errorf("config is a required flag"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := raiseOpenFileLimit()
	if err != nil {
		slog.Warn("could not raise open file limit", slog.String("error", err.Error()))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		panic(err)
	}

	client, err := newStorageClient(ctx, cfg, awsCfg, true)
	if err != nil {
		panic(err)
	}

	runID := uuid.NewString()
	slog.Info("starting run", slog.String("runID", runID), slog.String("backend", string(cfg.Backend)), slog.String("bucket", client.GetBucket()))

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir, err = os.MkdirTemp("", "s3bench-")
		if err != nil {
			panic(err)
		}
		defer os.RemoveAll(workDir)
	} else {
		err = os.MkdirAll(workDir, 0o755)
		if err != nil {
			panic(err)
		}
	}

	var deleter artifact.RemoteDeleter
	if cfg.DeleteRemote {
		deleter = client
	}
	artifacts := artifact.NewManager(deleter)

	var worker workerpool.Worker
	switch cfg.Worker {
	case workerpool.Process:
		absConfig, err := filepath.Abs(*configPath)
		if err != nil {
			panic(err)
		}
		worker, err = workerpool.NewProcessWorker(&workerpool.ProcessWorkerInput{
			Args: []string{probeCommand, "-config", absConfig, "-log-level", *logLevel},
		})
		if err != nil {
			panic(err)
		}
	default:
		worker = workerpool.NewThreadWorker(probe.NewProbe(&probe.ProbeInput{
			Client:  client,
			Tracker: artifacts,
			Timeout: cfg.TransferTimeout,
		}))
	}

	recorderInput := &report.RecorderInput{Version: version}
	if cfg.Metadata {
		recorderInput.Lookup = newMetadataLookup(awsCfg)
	}
	recorder, err := report.NewRecorder(recorderInput)
	if err != nil {
		panic(err)
	}

	driver := sweep.NewDriver(&sweep.DriverInput{
		RunID: runID,
		Generator: payload.NewGenerator(&payload.GeneratorInput{
			ChunkSize: int(util.MBToBytes(cfg.ChunkSizeMB)),
		}),
		Executor: workerpool.NewExecutor(&workerpool.ExecutorInput{
			Worker:    worker,
			Policy:    cfg.Policy,
			Tracker:   artifacts,
			RateLimit: cfg.RateLimit,
		}),
		Artifacts:      artifacts,
		Recorder:       recorder,
		WorkDir:        workDir,
		KeyPrefix:      runID,
		Clean:          cfg.Clean,
		RecordFailures: cfg.RecordFailures,
		AbortOnFailure: cfg.AbortOnFailure,
		ShowProgress:   *showProgress,
	})

	_, summary, runErr := driver.Run(ctx, cfg.Axes())
	if runErr != nil {
		slog.Error("sweep stopped", slog.String("error", runErr.Error()))
	}

	output := cfg.Output
	if output == "" {
		output = sink.DefaultOutputPath(runID)
	}
	path, err := recorder.Export(sink.NewFileSink(&sink.FileSinkInput{Path: output}), cfg.Format)
	if err != nil {
		panic(err)
	}

	if cfg.Publish != "" {
		publisher := sink.NewPublisher(&sink.PublisherInput{
			S3:             newS3Client(cfg, awsCfg),
			SSHKeyPath:     cfg.SSHKeyPath,
			KnownHostsPath: cfg.KnownHostsPath,
		})
		err = publisher.Publish(ctx, path, cfg.Publish)
		if err != nil {
			slog.Error("failed to publish results", slog.String("error", err.Error()))
		}
	}

	if summary != nil {
		summary.Print(os.Stdout)
	}
	if runErr != nil {
		return 1
	}
	return 0
}

func setUpLogger(w *os.File, level string) {
	var l slog.Level
	err := l.UnmarshalText([]byte(level))
	if err != nil {
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: l,
	}))
	slog.SetDefault(logger)
}

// runProbe is the child side of the process worker: `probe -config <path> '<task json>'`.
// The result is the last line written to stdout.
func runProbe(args []string) int {
	fs := flag.NewFlagSet(probeCommand, flag.ExitOnError)
	configPath := fs.String("config", "", "The JSON run configuration file.")
	logLevel := fs.String("log-level", "info", "One of: debug, info, warn, error.")
	err := fs.Parse(args)
	if err != nil {
		return 2
	}

	// stdout is reserved for the result line
	setUpLogger(os.Stderr, *logLevel)

	if fs.NArg() != 1 {
		slog.Error("expected exactly one task argument", slog.Int("got", fs.NArg()))
		return 2
	}

	ctx := context.Background()
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		return 1
	}
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		slog.Error("failed to load AWS config", slog.String("error", err.Error()))
		return 1
	}

	newProbe := func(tracker artifact.Tracker) (*probe.Probe, error) {
		client, err := newStorageClient(ctx, cfg, awsCfg, false)
		if err != nil {
			return nil, err
		}
		return probe.NewProbe(&probe.ProbeInput{
			Client:  client,
			Tracker: tracker,
			Timeout: cfg.TransferTimeout,
		}), nil
	}
	err = workerpool.RunChild(ctx, fs.Arg(0), newProbe, os.Stdout)
	if err != nil {
		slog.Error("probe failed", slog.String("error", err.Error()))
		return 1
	}
	return 0
}
