//go:build !notflite

package engine

import (
	"context"
	"path/filepath"
	"testing"

	"MLvsTheWorld/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTFLite_MissingModelDir(t *testing.T) {
	_, err := Load(Config{UseBackend: BackendTFLite, ModelDir: filepath.Join(t.TempDir(), "nope")})
	assert.ErrorIs(t, err, ErrModelLoad)
}

func TestTFLite_MissingArtifact(t *testing.T) {
	dir := t.TempDir()
	b, err := NewTFLite(dir, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultNumThreads, b.NumThreads)
	assert.Equal(t, filepath.Join(dir, "BackgroundRemoverStatic2WxH_128x176.tflite"), b.Path("BackgroundRemoverStatic2WxH_128x176"))

	in, err := tensor.New(1, 176, 128, 3)
	require.NoError(t, err)
	_, err = b.Infer(context.Background(), "BackgroundRemoverStatic2WxH_128x176", in)
	assert.ErrorIs(t, err, ErrModelLoad)
}
