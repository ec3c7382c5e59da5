package utils

import (
	"path/filepath"
	"testing"

	"github.com/Perceptus-Labs/perceptus-object-detector/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLoggerRejectsInvalidLevel(t *testing.T) {
	logger, err := NewLogger(config.LogConfig{Level: "loud"})
	require.Error(t, err)
	assert.Nil(t, logger)
	assert.Contains(t, err.Error(), "loud")
}

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger, err := NewLogger(config.LogConfig{Level: tt.level, File: filepath.Join(t.TempDir(), "app.log")})
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.want))
			assert.False(t, logger.Core().Enabled(tt.want-1))
		})
	}
}
