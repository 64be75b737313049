package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Octogonapus/S3Bench/metadata"
	"github.com/hashicorp/go-version"
)

// ExperimentRecord is one row of results: a sweep point and what was measured for it.
type ExperimentRecord struct {
	RunID          string
	Trial          int
	FileSizeMB     int
	MaxConcurrency int
	MaxIOQueue     int
	RandomData     bool
	NumProcess     int // transfers run in parallel for this point

	UploadTimeSec     float64
	DownloadTimeSec   float64
	UploadSpeedMbps   float64
	DownloadSpeedMbps float64

	Timestamp   time.Time
	Environment *Environment `json:",omitempty"`
	Error       string       `json:",omitempty"` // non-empty iff the point failed
}

// Environment is optional metadata about where a record was measured.
type Environment struct {
	InstanceType          string
	AvailabilityZone      string
	BaselineBandwidthGbps string
	Version               string
	Date                  string
	Datetime              string
}

type Format string

const (
	Tabular    Format = "tabular"
	Structured Format = "structured"
)

func (f Format) Validate() error {
	switch f {
	case Tabular, Structured:
		return nil
	default:
		return fmt.Errorf("unknown format: %s", f)
	}
}

// Sink persists records into a local artifact and returns its path.
type Sink interface {
	Write(records []ExperimentRecord, format Format) (string, error)
}

// Recorder accumulates records in append order.
type Recorder struct {
	input   *RecorderInput
	version *version.Version
	mu      sync.Mutex
	records []ExperimentRecord
}

type RecorderInput struct {
	// Enrich records with environment metadata. Nil disables enrichment.
	Lookup metadata.Lookup
	// The harness version written into enriched records.
	Version string
}

func NewRecorder(input *RecorderInput) (*Recorder, error) {
	r := &Recorder{input: input, records: []ExperimentRecord{}}
	if input.Lookup != nil {
		v, err := version.NewVersion(input.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid version %q: %w", input.Version, err)
		}
		r.version = v
	}
	return r, nil
}

// Append enriches rec if enabled and stores it. Metadata failures mark fields unavailable
// and never drop the record. Returns the stored record.
func (r *Recorder) Append(ctx context.Context, rec ExperimentRecord) ExperimentRecord {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if r.input.Lookup != nil {
		// fetched per record; placement is assumed constant per run but lookups can fail transiently
		rec.Environment = r.environment(ctx, rec.Timestamp)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return rec
}

func (r *Recorder) environment(ctx context.Context, ts time.Time) *Environment {
	env := &Environment{
		Version:  r.version.String(),
		Date:     ts.Format(time.DateOnly),
		Datetime: ts.Format(time.RFC3339),
	}
	fields := []struct {
		key string
		dst *string
	}{
		{metadata.KeyInstanceType, &env.InstanceType},
		{metadata.KeyAvailabilityZone, &env.AvailabilityZone},
		{metadata.KeyBaselineBandwidth, &env.BaselineBandwidthGbps},
	}
	for _, f := range fields {
		v, err := metadata.GetOrUnavailable(ctx, r.input.Lookup, f.key)
		if err != nil {
			slog.Warn("metadata unavailable", slog.String("key", f.key), slog.String("error", err.Error()))
		}
		*f.dst = v
	}
	return env
}

// Records returns a copy of every record appended so far.
func (r *Recorder) Records() []ExperimentRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ExperimentRecord{}, r.records...)
}

// Export writes every record to s and returns the artifact path.
func (r *Recorder) Export(s Sink, format Format) (string, error) {
	if err := format.Validate(); err != nil {
		return "", err
	}
	path, err := s.Write(r.Records(), format)
	if err != nil {
		return "", fmt.Errorf("exporting records failed: %w", err)
	}
	slog.Info("exported records", slog.String("path", path), slog.String("format", string(format)))
	return path, nil
}
