package payload

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Octogonapus/S3Bench/util"
)

type Mode string

const (
	Random Mode = "random"
	Zero   Mode = "zero"
)

// ModeFor maps the random_data run option to a content mode.
func ModeFor(randomData bool) Mode {
	if randomData {
		return Random
	}
	return Zero
}

// DefaultChunkSize matches the default S3 part size so a chunk is never larger than one part.
const DefaultChunkSize = 10 * util.MB

// GenerationError is returned when a payload file can't be written.
type GenerationError struct {
	Path string
	Err  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generating payload %s failed: %s", e.Path, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

type Generator interface {
	// Write exactly sizeMB megabytes to path, replacing any existing file.
	Generate(path string, sizeMB int, mode Mode) error
}

type generator struct {
	chunkSize int
}

type GeneratorInput struct {
	ChunkSize int // bytes per write. DefaultChunkSize if zero.
}

func NewGenerator(input *GeneratorInput) Generator {
	chunkSize := DefaultChunkSize
	if input != nil && input.ChunkSize > 0 {
		chunkSize = input.ChunkSize
	}
	return &generator{chunkSize: chunkSize}
}

func (g *generator) Generate(path string, sizeMB int, mode Mode) error {
	if sizeMB <= 0 {
		return &GenerationError{Path: path, Err: fmt.Errorf("size must be positive, got %d MB", sizeMB)}
	}
	if mode != Random && mode != Zero {
		return &GenerationError{Path: path, Err: fmt.Errorf("unknown content mode: %s", mode)}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return &GenerationError{Path: path, Err: err}
	}

	err = g.fill(f, util.MBToBytes(sizeMB), mode)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		// don't leave a short file behind, the caller only tracks complete payloads
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Warn("failed to remove partial payload", slog.String("path", path), slog.String("error", rmErr.Error()))
		}
		return &GenerationError{Path: path, Err: err}
	}

	slog.Debug("generated payload", slog.String("path", path), slog.Int("sizeMB", sizeMB), slog.String("mode", string(mode)))
	return nil
}

func (g *generator) fill(f *os.File, total int64, mode Mode) error {
	buf := make([]byte, min(int64(g.chunkSize), total))
	var written int64
	for written < total {
		chunk := buf[:min(int64(len(buf)), total-written)]
		if mode == Random {
			_, err := rand.Read(chunk)
			if err != nil {
				return fmt.Errorf("failed to generate random payload data: %w", err)
			}
		}
		n, err := f.Write(chunk)
		if err != nil {
			return fmt.Errorf("failed to write payload data: %w", err)
		}
		written += int64(n)
	}
	return nil
}
