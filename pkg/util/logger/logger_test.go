package logger

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		l, err := NewLogger(viper.New())
		require.NoError(t, err)
		require.True(t, l.Core().Enabled(zap.InfoLevel))
		require.False(t, l.Core().Enabled(zap.DebugLevel))
	})

	t.Run("configured", func(t *testing.T) {
		v := viper.New()
		v.Set(LevelKey, "debug")
		v.Set(FormatKey, "json")
		v.Set(SamplingInitialKey, 10)

		l, err := NewLogger(v)
		require.NoError(t, err)
		require.True(t, l.Core().Enabled(zap.DebugLevel))
	})

	t.Run("unknown level", func(t *testing.T) {
		v := viper.New()
		v.Set(LevelKey, "verbose")

		l, err := NewLogger(v)
		require.NoError(t, err)
		require.True(t, l.Core().Enabled(zap.InfoLevel))
		require.False(t, l.Core().Enabled(zap.DebugLevel))
	})
}
