package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Octogonapus/S3Bench/payload"
	"github.com/Octogonapus/S3Bench/report"
	"github.com/Octogonapus/S3Bench/storage"
	"github.com/Octogonapus/S3Bench/sweep"
	"github.com/Octogonapus/S3Bench/util"
	workerpool "github.com/Octogonapus/S3Bench/worker_pool"
	"github.com/mitchellh/mapstructure"
)

// RunConfig is everything one benchmark run needs, as read from a JSON config file.
type RunConfig struct {
	Bucket   string          `mapstructure:"bucket"`
	Backend  storage.Backend `mapstructure:"backend"`
	Region   string          `mapstructure:"region"`
	Endpoint string          `mapstructure:"endpoint"`
	// Directory standing in for the bucket with the local backend.
	LocalRoot string `mapstructure:"local_root"`

	OCINamespace string `mapstructure:"oci_namespace"`
	OCIConfig    string `mapstructure:"oci_config"`
	OCIProfile   string `mapstructure:"oci_profile"`

	SizeMB         []int `mapstructure:"size_mb"`
	Concurrency    []int `mapstructure:"concurrency"`
	MaxConcurrency []int `mapstructure:"max_concurrency"`
	MaxIOQueue     []int `mapstructure:"max_io_queue"`
	Trials         int   `mapstructure:"trials"`
	RandomData     bool  `mapstructure:"random_data"`

	Clean          bool                  `mapstructure:"clean"`
	DeleteRemote   bool                  `mapstructure:"delete_remote"`
	Worker         workerpool.WorkerKind `mapstructure:"worker"`
	Policy         workerpool.Policy     `mapstructure:"policy"`
	AbortOnFailure bool                  `mapstructure:"abort_on_failure"`
	RecordFailures bool                  `mapstructure:"record_failures"`
	// Per transfer call, no limit if zero.
	TransferTimeout time.Duration `mapstructure:"transfer_timeout"`
	// Task starts per second across a batch, no limit if zero.
	RateLimit float64 `mapstructure:"rate_limit"`

	Metadata       bool          `mapstructure:"metadata"`
	Output         string        `mapstructure:"output"`
	Format         report.Format `mapstructure:"format"`
	Publish        string        `mapstructure:"publish"`
	SSHKeyPath     string        `mapstructure:"ssh_key_path"`
	KnownHostsPath string        `mapstructure:"known_hosts_path"`

	WorkDir      string `mapstructure:"work_dir"`
	ChunkSizeMB  int    `mapstructure:"chunk_size_mb"`
	PartSizeMB   int    `mapstructure:"part_size_mb"`
	CreateBucket bool   `mapstructure:"create_bucket"`
}

// Default returns the configuration used for every key a config file leaves out.
func Default() RunConfig {
	return RunConfig{
		Backend:        storage.BackendS3,
		SizeMB:         []int{100},
		Concurrency:    []int{1},
		MaxConcurrency: []int{storage.DefaultMaxConcurrency},
		MaxIOQueue:     []int{storage.DefaultMaxIOQueue},
		Trials:         1,
		RandomData:     true,
		Clean:          true,
		DeleteRemote:   true,
		Worker:         workerpool.Thread,
		Policy:         workerpool.FailFast,
		Format:         report.Tabular,
		ChunkSizeMB:    payload.DefaultChunkSize / util.MB,
	}
}

// fillAxes sets axes the config file left out. Decoding into a non-empty slice would merge
// element-wise, so the axes are left nil until after decoding.
func (c *RunConfig) fillAxes() {
	d := Default()
	if c.SizeMB == nil {
		c.SizeMB = d.SizeMB
	}
	if c.Concurrency == nil {
		c.Concurrency = d.Concurrency
	}
	if c.MaxConcurrency == nil {
		c.MaxConcurrency = d.MaxConcurrency
	}
	if c.MaxIOQueue == nil {
		c.MaxIOQueue = d.MaxIOQueue
	}
}

// Load reads the JSON config file at path.
func Load(path string) (*RunConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config failed: %w", err)
	}
	return Parse(buf)
}

// Parse decodes a JSON config over the defaults and validates the result.
func Parse(buf []byte) (*RunConfig, error) {
	raw := map[string]any{}
	err := json.Unmarshal(buf, &raw)
	if err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}

	cfg := Default()
	cfg.SizeMB, cfg.Concurrency, cfg.MaxConcurrency, cfg.MaxIOQueue = nil, nil, nil, nil
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &cfg,
	})
	if err != nil {
		return nil, err
	}
	err = decoder.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding config failed: %w", err)
	}
	cfg.fillAxes()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *RunConfig) Validate() error {
	errs := []error{}
	if _, ok := storage.AllBackendsWithDescriptions[c.Backend]; !ok {
		errs = append(errs, fmt.Errorf("unknown backend %q, must be one of: %s", c.Backend, storage.ExplainBackends()))
	}
	if c.Backend != storage.BackendLocal && c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if c.Backend == storage.BackendLocal && c.LocalRoot == "" {
		errs = append(errs, errors.New("local_root is required with the local backend"))
	}
	if c.Backend == storage.BackendOCI && c.OCIConfig == "" {
		errs = append(errs, errors.New("oci_config is required with the oci backend"))
	}
	if err := c.Axes().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, ok := workerpool.AllWorkersWithDescriptions[c.Worker]; !ok {
		errs = append(errs, fmt.Errorf("unknown worker %q, must be one of: %s", c.Worker, workerpool.ExplainWorkers()))
	}
	if c.Policy != workerpool.FailFast && c.Policy != workerpool.BestEffort {
		errs = append(errs, fmt.Errorf("unknown policy %q", c.Policy))
	}
	if c.TransferTimeout < 0 {
		errs = append(errs, fmt.Errorf("transfer_timeout can't be negative, got %s", c.TransferTimeout))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate_limit can't be negative, got %v", c.RateLimit))
	}
	if err := c.Format.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Publish != "" && c.Output == "" {
		errs = append(errs, errors.New("publish needs output to be set"))
	}
	if c.ChunkSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size_mb must be positive, got %d", c.ChunkSizeMB))
	}
	if c.PartSizeMB < 0 {
		errs = append(errs, fmt.Errorf("part_size_mb can't be negative, got %d", c.PartSizeMB))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Axes returns the sweep axes described by the config.
func (c *RunConfig) Axes() sweep.Axes {
	return sweep.Axes{
		SizeMB:         c.SizeMB,
		Concurrency:    c.Concurrency,
		MaxConcurrency: c.MaxConcurrency,
		MaxIOQueue:     c.MaxIOQueue,
		Trials:         c.Trials,
		Mode:           payload.ModeFor(c.RandomData),
	}
}
