// Package logger builds zap loggers from configuration.
package logger

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Configuration keys.
const (
	LevelKey              = "logger.level"
	FormatKey             = "logger.format"
	TraceLevelKey         = "logger.trace_level"
	SamplingKey           = "logger.sampling"
	SamplingInitialKey    = "logger.sampling.initial"
	SamplingThereafterKey = "logger.sampling.thereafter"
)

const (
	formatJSON    = "json"
	formatConsole = "console"

	defaultSamplingInitial    = 100
	defaultSamplingThereafter = 100
)

func safeLevel(lvl string, def zapcore.Level) zap.AtomicLevel {
	l, err := zapcore.ParseLevel(strings.ToLower(lvl))
	if err != nil || lvl == "" {
		return zap.NewAtomicLevelAt(def)
	}
	return zap.NewAtomicLevelAt(l)
}

// NewLogger builds a logger writing to stderr, so stdout is left to command
// output.
func NewLogger(v *viper.Viper) (*zap.Logger, error) {
	c := zap.NewProductionConfig()

	c.OutputPaths = []string{"stderr"}
	c.ErrorOutputPaths = []string{"stderr"}

	if v.IsSet(SamplingKey) {
		c.Sampling = &zap.SamplingConfig{
			Initial:    defaultSamplingInitial,
			Thereafter: defaultSamplingThereafter,
		}

		if val := v.GetInt(SamplingInitialKey); val > 0 {
			c.Sampling.Initial = val
		}

		if val := v.GetInt(SamplingThereafterKey); val > 0 {
			c.Sampling.Thereafter = val
		}
	} else {
		c.Sampling = nil
	}

	c.Level = safeLevel(v.GetString(LevelKey), zap.InfoLevel)
	traceLvl := safeLevel(v.GetString(TraceLevelKey), zap.FatalLevel)

	switch f := v.GetString(FormatKey); strings.ToLower(f) {
	case formatJSON:
		c.Encoding = formatJSON
	default:
		c.Encoding = formatConsole
	}

	c.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	// enable trace only for current log-level
	return c.Build(zap.AddStacktrace(traceLvl))
}
