// Package logger - zap logger construction.
package logger

import (
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON logger writing info and below to stdout and warnings and
// above to stderr.
//
// Arguments:
//   - level: Minimum level, e.g. "debug", "info", "warn".
//   - debug: Use the development encoder config.
//
// Returns:
//   - *zap.Logger: The logger.
//   - error: An error if level cannot be parsed.
func New(level string, debug bool) (*zap.Logger, error) {
	minLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %q", level)
	}
	return newWithSyncers(minLevel, debug, zapcore.Lock(os.Stdout), zapcore.Lock(os.Stderr)), nil
}

func newWithSyncers(minLevel zapcore.Level, debug bool, stdout, stderr zapcore.WriteSyncer) *zap.Logger {
	lowLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level >= minLevel && level < zapcore.WarnLevel
	})
	highLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level >= minLevel && level >= zapcore.WarnLevel
	})

	encoderConfig := zap.NewProductionEncoderConfig()
	if debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, stdout, lowLevel),
		zapcore.NewCore(encoder, stderr, highLevel),
	)
	return zap.New(core)
}
