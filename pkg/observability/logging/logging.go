// Package logging provides a thin zap-backed logging facade shared by
// every package in the concierge. The level and encoding are taken from
// the environment so deployments can switch to JSON logs without a
// config change.
package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop().Sugar()
)

// InitFromEnv builds the process logger from LOG_LEVEL and LOG_FORMAT.
// LOG_LEVEL accepts debug/info/warn/error (default info); LOG_FORMAT
// accepts json or console (default console).
func InitFromEnv() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := level.Set(strings.ToLower(raw)); err != nil {
			return nil, err
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	if strings.ToLower(os.Getenv("LOG_FORMAT")) != "json" {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}

	mu.Lock()
	logger = l.Sugar()
	mu.Unlock()
	return l, nil
}

// SetLogger replaces the process logger. Used by tests to capture output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	logger = l.Sugar().WithOptions(zap.AddCallerSkip(1))
	mu.Unlock()
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debugf(format string, args ...interface{}) { get().Debugf(format, args...) }

func Infof(format string, args ...interface{}) { get().Infof(format, args...) }

func Warnf(format string, args ...interface{}) { get().Warnf(format, args...) }

func Errorf(format string, args ...interface{}) { get().Errorf(format, args...) }

// Fatalf logs and exits. Reserved for unrecoverable startup failures.
func Fatalf(format string, args ...interface{}) { get().Fatalf(format, args...) }

// Infow logs a message with structured key/value fields.
func Infow(msg string, keysAndValues ...interface{}) { get().Infow(msg, keysAndValues...) }

// Warnw logs a warning with structured key/value fields.
func Warnw(msg string, keysAndValues ...interface{}) { get().Warnw(msg, keysAndValues...) }
