package storage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type localClient struct {
	root string
}

// NewLocalClient stores objects as files under root. Keys may contain slashes.
// It measures local disk speed, not a storage service, and exists for dry runs and tests.
func NewLocalClient(root string) (*localClient, error) {
	err := os.MkdirAll(root, 0o755)
	if err != nil {
		return nil, fmt.Errorf("creating local bucket %s failed: %w", root, err)
	}
	return &localClient{root: root}, nil
}

func (c *localClient) objectPath(key string) string {
	return filepath.Join(c.root, filepath.FromSlash(key))
}

func (c *localClient) Put(ctx context.Context, localPath string, key string, cfg TransferConfig) error {
	dst := c.objectPath(key)
	err := os.MkdirAll(filepath.Dir(dst), 0o755)
	if err != nil {
		return err
	}
	return copyFile(ctx, localPath, dst, IOBufferSize(cfg))
}

func (c *localClient) Get(ctx context.Context, key string, localPath string, cfg TransferConfig) error {
	return copyFile(ctx, c.objectPath(key), localPath, IOBufferSize(cfg))
}

func (c *localClient) Delete(ctx context.Context, key string) error {
	return os.Remove(c.objectPath(key))
}

func (c *localClient) GetBucket() string {
	return c.root
}

func copyFile(ctx context.Context, src string, dst string, bufSize int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	w := bufio.NewWriterSize(out, bufSize)
	_, err = io.Copy(w, in)
	if err != nil {
		return err
	}
	return w.Flush()
}
