package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/oracle/oci-go-sdk/v65/common"
	"github.com/oracle/oci-go-sdk/v65/objectstorage"
)

type ociClient struct {
	input     *OCIClientInput
	client    objectstorage.ObjectStorageClient
	namespace string
}

type OCIClientInput struct {
	ConfigPath string // OCI config file, e.g. ~/.oci/config
	Profile    string // "DEFAULT" if empty
	Namespace  string // fetched from the API if empty
	Host       string // overrides the SDK endpoint if set
	Bucket     string
}

// NewOCIClient builds an OCI Object Storage client. OCI has no multipart knob on plain
// PutObject, so only MaxIOQueue (download buffering) is honored from the transfer config.
func NewOCIClient(ctx context.Context, input *OCIClientInput) (*ociClient, error) {
	profile := input.Profile
	if profile == "" {
		profile = "DEFAULT"
	}
	provider, err := common.ConfigurationProviderFromFile(input.ConfigPath, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to load OCI config from %s: %w", input.ConfigPath, err)
	}

	client, err := objectstorage.NewObjectStorageClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("creating OCI object storage client failed: %w", err)
	}
	httpClient, err := newHTTPClient()
	if err != nil {
		return nil, err
	}
	client.HTTPClient = httpClient
	if input.Host != "" {
		slog.Debug("using custom OCI host", slog.String("host", input.Host))
		client.Host = input.Host
	}

	namespace := input.Namespace
	if namespace == "" {
		resp, err := client.GetNamespace(ctx, objectstorage.GetNamespaceRequest{})
		if err != nil {
			return nil, fmt.Errorf("fetching OCI namespace failed: %w", err)
		}
		namespace = *resp.Value
		slog.Debug("fetched OCI namespace", slog.String("namespace", namespace))
	}

	return &ociClient{input: input, client: client, namespace: namespace}, nil
}

func (c *ociClient) Put(ctx context.Context, localPath string, key string, cfg TransferConfig) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	_, err = c.client.PutObject(ctx, objectstorage.PutObjectRequest{
		NamespaceName: common.String(c.namespace),
		BucketName:    common.String(c.input.Bucket),
		ObjectName:    common.String(key),
		ContentLength: common.Int64(info.Size()),
		PutObjectBody: io.NopCloser(f),
	})
	return err
}

func (c *ociClient) Get(ctx context.Context, key string, localPath string, cfg TransferConfig) error {
	resp, err := c.client.GetObject(ctx, objectstorage.GetObjectRequest{
		NamespaceName: common.String(c.namespace),
		BucketName:    common.String(c.input.Bucket),
		ObjectName:    common.String(key),
	})
	if err != nil {
		return err
	}
	defer resp.Content.Close()

	f, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	// Reading the whole body is required for an accurate measurement
	w := bufio.NewWriterSize(f, IOBufferSize(cfg))
	_, err = io.Copy(w, resp.Content)
	if err != nil {
		return err
	}
	return w.Flush()
}

func (c *ociClient) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, objectstorage.DeleteObjectRequest{
		NamespaceName: common.String(c.namespace),
		BucketName:    common.String(c.input.Bucket),
		ObjectName:    common.String(key),
	})
	return err
}

func (c *ociClient) GetBucket() string {
	return c.input.Bucket
}
