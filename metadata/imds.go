package metadata

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
)

type imdsAPI interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
}

type imdsLookup struct {
	client imdsAPI
}

// NewIMDSLookup reads instance metadata from the EC2 instance metadata service.
func NewIMDSLookup(client imdsAPI) Lookup {
	return &imdsLookup{client: client}
}

func (l *imdsLookup) Get(ctx context.Context, key string) (string, error) {
	out, err := l.client.GetMetadata(ctx, &imds.GetMetadataInput{Path: key})
	if err != nil {
		return "", &MetadataError{Key: key, Err: err}
	}
	defer out.Content.Close()
	buf, err := io.ReadAll(out.Content)
	if err != nil {
		return "", &MetadataError{Key: key, Err: err}
	}
	return strings.TrimSpace(string(buf)), nil
}
