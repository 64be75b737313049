package metadata

import (
	"context"
	"fmt"
)

// Keys understood by the lookups in this package. The IMDS ones are instance metadata paths.
const (
	KeyInstanceType      = "instance-type"
	KeyAvailabilityZone  = "placement/availability-zone"
	KeyBaselineBandwidth = "network/baseline-bandwidth-gbps"
)

// Unavailable replaces a value whose lookup failed.
const Unavailable = "unavailable"

// Lookup answers environment metadata queries. Errors are never fatal to a run.
type Lookup interface {
	Get(ctx context.Context, key string) (string, error)
}

type MetadataError struct {
	Key string
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata lookup of %s failed: %s", e.Key, e.Err)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// GetOrUnavailable returns the value for key, or Unavailable and the error.
func GetOrUnavailable(ctx context.Context, l Lookup, key string) (string, error) {
	v, err := l.Get(ctx, key)
	if err != nil {
		return Unavailable, err
	}
	return v, nil
}

// Static is a Lookup backed by a map. Missing keys are errors.
type Static map[string]string

func (s Static) Get(ctx context.Context, key string) (string, error) {
	v, ok := s[key]
	if !ok {
		return "", &MetadataError{Key: key, Err: fmt.Errorf("unknown key")}
	}
	return v, nil
}
