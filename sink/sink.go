package sink

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Octogonapus/S3Bench/report"
)

var header = []string{
	"trial",
	"file_size",
	"max_concurrency",
	"max_io_queue",
	"random_data",
	"num_process",
	"upload_time_sec",
	"download_time_sec",
	"upload_speed_mbps",
	"download_speed_mbps",
}

// Written only when at least one record carries environment metadata.
var environmentHeader = []string{
	"instance_type",
	"availability_zone",
	"version",
	"date",
	"datetime",
	"baseline_bandwidth_gbps",
}

type fileSink struct {
	input *FileSinkInput
}

type FileSinkInput struct {
	// Where to write. ".csv" or ".json" is appended if the path has no extension.
	Path string
}

// NewFileSink creates a sink which writes records to a local file.
func NewFileSink(input *FileSinkInput) report.Sink {
	return &fileSink{input: input}
}

func (s *fileSink) path(format report.Format) string {
	if filepath.Ext(s.input.Path) != "" {
		return s.input.Path
	}
	if format == report.Structured {
		return s.input.Path + ".json"
	}
	return s.input.Path + ".csv"
}

func (s *fileSink) Write(records []report.ExperimentRecord, format report.Format) (string, error) {
	if err := format.Validate(); err != nil {
		return "", err
	}
	path := s.path(format)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	switch format {
	case report.Structured:
		err = writeJSON(f, records)
	default:
		err = writeCSV(f, records)
	}
	if err != nil {
		return "", fmt.Errorf("writing %s failed: %w", path, err)
	}
	return path, f.Close()
}

func writeJSON(f *os.File, records []report.ExperimentRecord) error {
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func writeCSV(f *os.File, records []report.ExperimentRecord) error {
	withEnv := false
	withErr := false
	for _, rec := range records {
		withEnv = withEnv || rec.Environment != nil
		withErr = withErr || rec.Error != ""
	}

	cols := append([]string{}, header...)
	if withEnv {
		cols = append(cols, environmentHeader...)
	}
	if withErr {
		cols = append(cols, "error")
	}

	w := csv.NewWriter(f)
	if err := w.Write(cols); err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.Write(row(rec, withEnv, withErr)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func row(rec report.ExperimentRecord, withEnv bool, withErr bool) []string {
	r := []string{
		strconv.Itoa(rec.Trial),
		strconv.Itoa(rec.FileSizeMB),
		strconv.Itoa(rec.MaxConcurrency),
		strconv.Itoa(rec.MaxIOQueue),
		strconv.FormatBool(rec.RandomData),
		strconv.Itoa(rec.NumProcess),
		formatFloat(rec.UploadTimeSec),
		formatFloat(rec.DownloadTimeSec),
		formatFloat(rec.UploadSpeedMbps),
		formatFloat(rec.DownloadSpeedMbps),
	}
	if withEnv {
		env := rec.Environment
		if env == nil {
			env = &report.Environment{}
		}
		r = append(r, env.InstanceType, env.AvailabilityZone, env.Version, env.Date, env.Datetime, env.BaselineBandwidthGbps)
	}
	if withErr {
		r = append(r, rec.Error)
	}
	return r
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// DefaultOutputPath is the output path used when none is configured.
func DefaultOutputPath(runID string) string {
	return fmt.Sprintf("s3bench-%s-%s", time.Now().Format("20060102-150405"), runID)
}
