package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3Types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type s3Client struct {
	input *S3ClientInput
	s3    *s3.Client
}

type S3ClientInput struct {
	AwsConfig aws.Config
	Bucket    string
	Endpoint  string // empty uses the regional AWS endpoint
	PartSize  int64  // manager.DefaultUploadPartSize if zero
}

func NewS3Client(input *S3ClientInput) *s3Client {
	return &s3Client{
		input: input,
		s3: s3.NewFromConfig(input.AwsConfig, func(o *s3.Options) {
			if input.Endpoint != "" {
				o.BaseEndpoint = aws.String(input.Endpoint)
				o.UsePathStyle = true
			}
		}),
	}
}

func (c *s3Client) partSize() int64 {
	if c.input.PartSize > 0 {
		return c.input.PartSize
	}
	return manager.DefaultUploadPartSize
}

func (c *s3Client) Put(ctx context.Context, localPath string, key string, cfg TransferConfig) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	uploader := manager.NewUploader(c.s3, func(u *manager.Uploader) {
		u.PartSize = c.partSize()
		u.Concurrency = cfg.MaxConcurrency
		u.BufferProvider = manager.NewBufferedReadSeekerWriteToPool(IOBufferSize(cfg))
	})
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: &c.input.Bucket,
		Key:    &key,
		Body:   f,
	})
	return err
}

func (c *s3Client) Get(ctx context.Context, key string, localPath string, cfg TransferConfig) error {
	f, err := os.OpenFile(localPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	downloader := manager.NewDownloader(c.s3, func(d *manager.Downloader) {
		d.PartSize = c.partSize()
		d.Concurrency = cfg.MaxConcurrency
		d.BufferProvider = manager.NewPooledBufferedWriterReadFromProvider(IOBufferSize(cfg))
	})
	_, err = downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: &c.input.Bucket,
		Key:    &key,
	})
	return err
}

func (c *s3Client) Delete(ctx context.Context, key string) error {
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &c.input.Bucket,
		Key:    &key,
	})
	return err
}

func (c *s3Client) GetBucket() string {
	return c.input.Bucket
}

// SetUp creates the bucket if it does not exist yet.
func (c *s3Client) SetUp(ctx context.Context) error {
	input := &s3.CreateBucketInput{
		Bucket: &c.input.Bucket,
		ACL:    s3Types.BucketCannedACLPrivate,
	}
	// us-east-1 rejects an explicit location constraint
	if c.input.AwsConfig.Region != "" && c.input.AwsConfig.Region != "us-east-1" {
		input.CreateBucketConfiguration = &s3Types.CreateBucketConfiguration{
			LocationConstraint: s3Types.BucketLocationConstraint(c.input.AwsConfig.Region),
		}
	}
	_, err := c.s3.CreateBucket(ctx, input)
	var owned *s3Types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		slog.Debug("bucket already exists", slog.String("name", c.input.Bucket))
		return nil
	} else if err != nil {
		return fmt.Errorf("creating bucket %s failed: %w", c.input.Bucket, err)
	}
	slog.Debug("created bucket", slog.String("name", c.input.Bucket))
	return nil
}
