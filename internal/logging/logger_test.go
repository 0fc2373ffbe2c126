package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_DefaultConfig(t *testing.T) {
	logger, err := NewLogger(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "format")

	cfg = NewDefaultConfig()
	cfg.Output = OutputConfig{}
	_, err = NewLogger(cfg, nil)
	require.Error(t, err)
}

func TestLevelFromString(t *testing.T) {
	level, err := LevelFromString("trace")
	require.NoError(t, err)
	assert.Equal(t, TraceLevel, level)

	level, err = LevelFromString("warn")
	require.NoError(t, err)
	assert.Equal(t, zapcore.WarnLevel, level)

	_, err = LevelFromString("loud")
	assert.Error(t, err)
}

func TestContextFields_AttachAndRetrieve(t *testing.T) {
	ctx := WithFields(context.Background(), zap.String("workflow_id", "wf-1"))
	ctx = WithFields(ctx, zap.Int("step", 2))

	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "workflow_id", fields[0].Key)
	assert.Equal(t, "step", fields[1].Key)

	assert.Nil(t, ContextFields(context.Background()))
}

func TestLogger_ContextFieldsIncluded(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithFields(context.Background(), zap.String("workflow_id", "wf-1"))

	tl.Info(ctx, "advanced", zap.Int("step", 1))

	entries := tl.FilterMessage("advanced").All()
	require.Len(t, entries, 1)
	fieldMap := entries[0].ContextMap()
	assert.Equal(t, "wf-1", fieldMap["workflow_id"])
	assert.Equal(t, int64(1), fieldMap["step"])
}

func TestLogger_TraceLevelGated(t *testing.T) {
	tl := NewTestLogger()
	tl.Trace(context.Background(), "wire detail")
	tl.AssertLogged(t, TraceLevel, "wire detail")
}
