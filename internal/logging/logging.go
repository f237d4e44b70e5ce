// Package logging builds the server's structured logger, grounded on
// adred-codev-ws_poc/go-server-3's internal/logging/logging.go: JSON
// encoding, ISO8601 timestamps, a level knob driven by config.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger for the given loglevel config value
// (debug|verbose|notice|warning), mapping the Redis-flavored level names
// original_source/src/config.rs accepts onto zap's level set: "notice"
// (the default) maps to info, "verbose" maps to debug.
func NewLogger(levelName string) (*zap.Logger, error) {
	level, err := parseLevel(levelName)
	if err != nil {
		return nil, err
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stack",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapCfg.Build()
}

func parseLevel(name string) (zapcore.Level, error) {
	switch name {
	case "debug", "verbose":
		return zap.DebugLevel, nil
	case "", "notice", "info":
		return zap.InfoLevel, nil
	case "warning", "warn":
		return zap.WarnLevel, nil
	default:
		var lvl zapcore.Level
		if err := lvl.Set(name); err != nil {
			return 0, fmt.Errorf("invalid log level %q: %w", name, err)
		}
		return lvl, nil
	}
}
