package metadata

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2Types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

type describeInstanceTypesAPI interface {
	DescribeInstanceTypes(ctx context.Context, params *ec2.DescribeInstanceTypesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error)
}

type ec2Lookup struct {
	base Lookup
	ec2  describeInstanceTypesAPI
}

// NewEC2Lookup answers KeyBaselineBandwidth from the EC2 API using the instance type base reports.
// Every other key goes to base.
func NewEC2Lookup(base Lookup, client describeInstanceTypesAPI) Lookup {
	return &ec2Lookup{base: base, ec2: client}
}

func (l *ec2Lookup) Get(ctx context.Context, key string) (string, error) {
	if key != KeyBaselineBandwidth {
		return l.base.Get(ctx, key)
	}

	instanceType, err := l.base.Get(ctx, KeyInstanceType)
	if err != nil {
		return "", &MetadataError{Key: key, Err: err}
	}
	resp, err := l.ec2.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{
		InstanceTypes: []ec2Types.InstanceType{ec2Types.InstanceType(instanceType)},
	})
	if err != nil {
		return "", &MetadataError{Key: key, Err: err}
	}
	if len(resp.InstanceTypes) == 0 || resp.InstanceTypes[0].NetworkInfo == nil ||
		len(resp.InstanceTypes[0].NetworkInfo.NetworkCards) == 0 ||
		resp.InstanceTypes[0].NetworkInfo.NetworkCards[0].BaselineBandwidthInGbps == nil {
		return "", &MetadataError{Key: key, Err: fmt.Errorf("no network info for instance type %s", instanceType)}
	}
	bw := *resp.InstanceTypes[0].NetworkInfo.NetworkCards[0].BaselineBandwidthInGbps
	return strconv.FormatFloat(bw, 'f', -1, 64), nil
}
