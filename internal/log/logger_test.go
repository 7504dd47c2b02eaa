package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"citadel/internal/config"
)

func TestBuildConfig(t *testing.T) {
	zapCfg, err := buildConfig(config.LoggingConfig{Level: "DEBUG", Encoding: "json"})
	require.NoError(t, err)

	assert.Equal(t, zapcore.DebugLevel, zapCfg.Level.Level())
	assert.Equal(t, "json", zapCfg.Encoding)
	assert.Equal(t, []string{"stdout"}, zapCfg.OutputPaths)
	assert.Equal(t, []string{"stderr"}, zapCfg.ErrorOutputPaths)
	assert.Equal(t, "citadel", zapCfg.InitialFields["service"])
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(config.LoggingConfig{Level: "loud"})
	require.Error(t, err)
}
