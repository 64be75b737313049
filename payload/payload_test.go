package payload

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Octogonapus/S3Bench/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateExactSize(t *testing.T) {
	dir := t.TempDir()
	// a chunk size that doesn't divide 1 MB exercises the short final chunk
	g := NewGenerator(&GeneratorInput{ChunkSize: 300_001})

	for _, mode := range []Mode{Random, Zero} {
		for _, size := range []int{1, 2, 3} {
			path := filepath.Join(dir, string(mode)+".tmp")
			require.NoError(t, g.Generate(path, size, mode))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, int64(size)*util.MB, info.Size(), "mode=%s size=%d", mode, size)
		}
	}
}

func TestGenerateZeroContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zero.tmp")
	require.NoError(t, NewGenerator(nil).Generate(path, 1, Zero))

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(buf, make([]byte, util.MB)))
}

func TestGenerateRandomContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "random.tmp")
	require.NoError(t, NewGenerator(nil).Generate(path, 1, Random))

	buf, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, bytes.Equal(buf, make([]byte, util.MB)))
}

func TestGenerateOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.tmp")
	g := NewGenerator(nil)
	require.NoError(t, g.Generate(path, 2, Zero))
	require.NoError(t, g.Generate(path, 1, Zero))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(util.MB), info.Size())
}

func TestGenerateInvalidInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p.tmp")
	g := NewGenerator(nil)

	var genErr *GenerationError
	require.ErrorAs(t, g.Generate(path, 0, Zero), &genErr)
	require.ErrorAs(t, g.Generate(path, 1, Mode("ones")), &genErr)
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestGenerateUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "p.tmp")
	err := NewGenerator(nil).Generate(path, 1, Zero)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, path, genErr.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestModeFor(t *testing.T) {
	assert.Equal(t, Random, ModeFor(true))
	assert.Equal(t, Zero, ModeFor(false))
}
