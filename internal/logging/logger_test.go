// internal/logging/logger_test.go
package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("builds logger at requested level", func(t *testing.T) {
		logger, err := New("debug")
		require.NoError(t, err)
		defer func() { _ = logger.Sync() }()
		assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})

	t.Run("info logger drops debug", func(t *testing.T) {
		logger, err := New("info")
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
		assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := New("loud")
		require.Error(t, err)
	})
}
