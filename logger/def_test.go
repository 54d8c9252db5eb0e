package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNamedUsesInstalledLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	Set(zap.New(core))
	defer Set(zap.NewNop())

	Named("pipeline").Info("frame skipped", zap.Uint64("seq", 3))
	S().Debugw("below level")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "pipeline", entries[0].LoggerName)
	assert.Equal(t, "frame skipped", entries[0].Message)
	assert.Equal(t, uint64(3), entries[0].ContextMap()["seq"])
}

func TestInitModes(t *testing.T) {
	defer Set(zap.NewNop())
	for _, mode := range []string{ModeProduction, ModeDevelopment, ""} {
		require.NoError(t, Init(mode))
		assert.NotNil(t, Log())
	}
}
