package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/Octogonapus/S3Bench/target"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Scheme string

const (
	SchemeS3   Scheme = "s3"
	SchemeSFTP Scheme = "sftp"
)

// Destination is a parsed publish location, either s3://bucket/key or sftp://user@host[:port]/path.
type Destination struct {
	Scheme Scheme
	// S3
	Bucket string
	Key    string
	// SFTP
	User string
	Host string
	Port int
	Path string
}

func ParseDestination(raw string) (*Destination, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid destination %q: %w", raw, err)
	}

	switch Scheme(u.Scheme) {
	case SchemeS3:
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, fmt.Errorf("invalid destination %q: want s3://bucket/key", raw)
		}
		return &Destination{Scheme: SchemeS3, Bucket: u.Host, Key: key}, nil
	case SchemeSFTP:
		if u.User == nil || u.User.Username() == "" || u.Hostname() == "" || u.Path == "" || u.Path == "/" {
			return nil, fmt.Errorf("invalid destination %q: want sftp://user@host[:port]/path", raw)
		}
		d := &Destination{Scheme: SchemeSFTP, User: u.User.Username(), Host: u.Hostname(), Path: u.Path}
		if p := u.Port(); p != "" {
			d.Port, err = strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid destination port %q: %w", p, err)
			}
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported destination scheme %q", u.Scheme)
	}
}

func (d *Destination) String() string {
	switch d.Scheme {
	case SchemeS3:
		return fmt.Sprintf("s3://%s/%s", d.Bucket, d.Key)
	case SchemeSFTP:
		host := d.Host
		if d.Port != 0 {
			host = fmt.Sprintf("%s:%d", d.Host, d.Port)
		}
		return fmt.Sprintf("sftp://%s@%s%s", d.User, host, d.Path)
	default:
		return string(d.Scheme)
	}
}

// Publisher copies exported artifacts to a remote destination.
type Publisher struct {
	input *PublisherInput
}

type PublisherInput struct {
	// Used for s3:// destinations. Publishing to S3 fails if nil.
	S3 manager.UploadAPIClient
	// Private key used for sftp:// destinations.
	SSHKeyPath     string
	KnownHostsPath string
	// Overrides how SFTP targets are created.
	NewTarget func(d *Destination) (target.Target, error)
}

func NewPublisher(input *PublisherInput) *Publisher {
	p := &Publisher{input: input}
	if p.input.NewTarget == nil {
		p.input.NewTarget = p.newSSHTarget
	}
	return p
}

func (p *Publisher) newSSHTarget(d *Destination) (target.Target, error) {
	return target.NewSSHTarget(&target.SSHTargetInput{
		User:           d.User,
		Host:           d.Host,
		Port:           d.Port,
		KeyPath:        p.input.SSHKeyPath,
		KnownHostsPath: p.input.KnownHostsPath,
	})
}

// Publish copies the local file at path to destination.
func (p *Publisher) Publish(ctx context.Context, path string, destination string) error {
	d, err := ParseDestination(destination)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch d.Scheme {
	case SchemeS3:
		if p.input.S3 == nil {
			return fmt.Errorf("no S3 client to publish to %s", d)
		}
		uploader := manager.NewUploader(p.input.S3)
		_, err = uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: &d.Bucket,
			Key:    &d.Key,
			Body:   f,
		})
	case SchemeSFTP:
		var t target.Target
		t, err = p.input.NewTarget(d)
		if err == nil {
			err = t.CopyFileTo(ctx, f, d.Path)
		}
	}
	if err != nil {
		return fmt.Errorf("publishing %s to %s failed: %w", path, d, err)
	}

	slog.Info("published results", slog.String("path", path), slog.String("destination", d.String()))
	return nil
}
