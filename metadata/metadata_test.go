package metadata

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2Types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIMDS struct {
	values map[string]string
	calls  int
}

func (f *fakeIMDS) GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error) {
	f.calls++
	v, ok := f.values[params.Path]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return &imds.GetMetadataOutput{Content: io.NopCloser(strings.NewReader(v + "\n"))}, nil
}

type fakeEC2 struct {
	gbps *float64
	err  error
	seen []ec2Types.InstanceType
}

func (f *fakeEC2) DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error) {
	f.seen = append(f.seen, params.InstanceTypes...)
	if f.err != nil {
		return nil, f.err
	}
	return &ec2.DescribeInstanceTypesOutput{InstanceTypes: []ec2Types.InstanceTypeInfo{{
		NetworkInfo: &ec2Types.NetworkInfo{NetworkCards: []ec2Types.NetworkCardInfo{{BaselineBandwidthInGbps: f.gbps}}},
	}}}, nil
}

func TestIMDSLookup(t *testing.T) {
	client := &fakeIMDS{values: map[string]string{KeyInstanceType: "m6i.8xlarge"}}
	l := NewIMDSLookup(client)

	v, err := l.Get(context.Background(), KeyInstanceType)
	require.NoError(t, err)
	assert.Equal(t, "m6i.8xlarge", v)

	_, err = l.Get(context.Background(), KeyAvailabilityZone)
	var merr *MetadataError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, KeyAvailabilityZone, merr.Key)
}

func TestGetOrUnavailable(t *testing.T) {
	l := Static{KeyInstanceType: "c5n.large"}
	v, err := GetOrUnavailable(context.Background(), l, KeyInstanceType)
	assert.NoError(t, err)
	assert.Equal(t, "c5n.large", v)

	v, err = GetOrUnavailable(context.Background(), l, KeyAvailabilityZone)
	assert.Error(t, err)
	assert.Equal(t, Unavailable, v)
}

func TestEC2LookupBandwidth(t *testing.T) {
	client := &fakeEC2{gbps: aws.Float64(12.5)}
	l := NewEC2Lookup(Static{KeyInstanceType: "m6i.8xlarge", KeyAvailabilityZone: "us-east-2a"}, client)

	v, err := l.Get(context.Background(), KeyBaselineBandwidth)
	require.NoError(t, err)
	assert.Equal(t, "12.5", v)
	assert.Equal(t, []ec2Types.InstanceType{"m6i.8xlarge"}, client.seen)

	v, err = l.Get(context.Background(), KeyAvailabilityZone)
	require.NoError(t, err)
	assert.Equal(t, "us-east-2a", v)
}

func TestEC2LookupFailures(t *testing.T) {
	_, err := NewEC2Lookup(Static{}, &fakeEC2{}).Get(context.Background(), KeyBaselineBandwidth)
	assert.Error(t, err)

	_, err = NewEC2Lookup(Static{KeyInstanceType: "x"}, &fakeEC2{err: errors.New("throttled")}).Get(context.Background(), KeyBaselineBandwidth)
	assert.Error(t, err)

	_, err = NewEC2Lookup(Static{KeyInstanceType: "x"}, &fakeEC2{}).Get(context.Background(), KeyBaselineBandwidth)
	var merr *MetadataError
	assert.ErrorAs(t, err, &merr)
}
