package main

import (
	"context"
	"fmt"

	"github.com/Octogonapus/S3Bench/config"
	"github.com/Octogonapus/S3Bench/metadata"
	"github.com/Octogonapus/S3Bench/sink"
	"github.com/Octogonapus/S3Bench/storage"
	"github.com/Octogonapus/S3Bench/util"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func needsAWS(cfg *config.RunConfig) bool {
	if cfg.Backend == storage.BackendS3 || cfg.Metadata {
		return true
	}
	if cfg.Publish != "" {
		d, err := sink.ParseDestination(cfg.Publish)
		return err == nil && d.Scheme == sink.SchemeS3
	}
	return false
}

func loadAWSConfig(ctx context.Context, cfg *config.RunConfig) (aws.Config, error) {
	if !needsAWS(cfg) {
		return aws.Config{}, nil
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithEC2IMDSRegion()}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// newStorageClient builds the client for the configured backend. The bucket is only created when setUp is set.
func newStorageClient(ctx context.Context, cfg *config.RunConfig, awsCfg aws.Config, setUp bool) (storage.Client, error) {
	switch cfg.Backend {
	case storage.BackendS3:
		client := storage.NewS3Client(&storage.S3ClientInput{
			AwsConfig: awsCfg,
			Bucket:    cfg.Bucket,
			Endpoint:  cfg.Endpoint,
			PartSize:  util.MBToBytes(cfg.PartSizeMB),
		})
		if setUp && cfg.CreateBucket {
			err := client.SetUp(ctx)
			if err != nil {
				return nil, err
			}
		}
		return client, nil
	case storage.BackendOCI:
		client, err := storage.NewOCIClient(ctx, &storage.OCIClientInput{
			ConfigPath: cfg.OCIConfig,
			Profile:    cfg.OCIProfile,
			Namespace:  cfg.OCINamespace,
			Host:       cfg.Endpoint,
			Bucket:     cfg.Bucket,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case storage.BackendLocal:
		client, err := storage.NewLocalClient(cfg.LocalRoot)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", cfg.Backend)
	}
}

func newMetadataLookup(awsCfg aws.Config) metadata.Lookup {
	return metadata.NewEC2Lookup(
		metadata.NewIMDSLookup(imds.NewFromConfig(awsCfg)),
		ec2.NewFromConfig(awsCfg),
	)
}

func newS3Client(cfg *config.RunConfig, awsCfg aws.Config) *s3.Client {
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Backend == storage.BackendS3 && cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
}
