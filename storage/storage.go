package storage

import (
	"context"
	"fmt"
	"strings"
)

// Default transfer tuning, the same defaults boto3's TransferConfig uses.
const (
	DefaultMaxConcurrency = 10
	DefaultMaxIOQueue     = 100
)

// TransferConfig tunes a single object transfer on the client side.
type TransferConfig struct {
	MaxConcurrency int // parallel streams per object
	MaxIOQueue     int // depth of the client-side IO buffer queue
}

func DefaultTransferConfig() TransferConfig {
	return TransferConfig{MaxConcurrency: DefaultMaxConcurrency, MaxIOQueue: DefaultMaxIOQueue}
}

func (c TransferConfig) Validate() error {
	if c.MaxConcurrency <= 0 {
		return fmt.Errorf("max concurrency must be positive, got %d", c.MaxConcurrency)
	}
	if c.MaxIOQueue <= 0 {
		return fmt.Errorf("max io queue must be positive, got %d", c.MaxIOQueue)
	}
	return nil
}

// Client is the object storage capability the harness measures.
type Client interface {
	// Upload the file at localPath to key.
	Put(ctx context.Context, localPath string, key string, cfg TransferConfig) error

	// Download key into localPath, creating or truncating it.
	Get(ctx context.Context, key string, localPath string, cfg TransferConfig) error

	Delete(ctx context.Context, key string) error

	// The bucket (or equivalent) all keys live in.
	GetBucket() string
}

type Backend string

const (
	BackendS3    Backend = "s3"
	BackendOCI   Backend = "oci"
	BackendLocal Backend = "local"
)

var AllBackendsWithDescriptions = map[Backend]string{
	BackendS3:    "Amazon S3 or an S3-compatible endpoint",
	BackendOCI:   "OCI Object Storage",
	BackendLocal: "a local directory standing in for a bucket, for dry runs",
}

func ExplainBackends() string {
	var sb strings.Builder
	i := 0
	for b, desc := range AllBackendsWithDescriptions {
		sb.WriteString("\"")
		sb.WriteString(string(b))
		sb.WriteString("\" (")
		sb.WriteString(desc)
		sb.WriteString(")")
		if i < len(AllBackendsWithDescriptions)-1 {
			sb.WriteString(", ")
		}
		i++
	}
	return sb.String()
}

// ioChunkSize is the size of one entry in the IO queue, matching boto3's io_chunksize.
const ioChunkSize = 256 * 1024

// IOBufferSize is the client-side buffer a transfer config allows, in bytes.
func IOBufferSize(cfg TransferConfig) int {
	return max(cfg.MaxIOQueue, 1) * ioChunkSize
}
