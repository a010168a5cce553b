// Package logging wraps zap with the key/value call style used across
// Quill.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured logger.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger. mode is "dev" or "prod"; level is a zap level name.
func New(mode, level string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("logging: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}
	return &Logger{SugaredLogger: z.Sugar()}, nil
}

// FromCore wraps an existing zap core.
func FromCore(core zapcore.Core) *Logger {
	return &Logger{SugaredLogger: zap.New(core).Sugar()}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, redact(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, redact(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, redact(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, redact(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(redact(keysAndValues)...)}
}

// redact masks values whose key names a secret.
func redact(kv []interface{}) []interface{} {
	if len(kv) < 2 {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		k := strings.ToLower(key)
		if strings.Contains(k, "token") || strings.Contains(k, "password") || strings.Contains(k, "secret") {
			out[i+1] = "[REDACTED]"
		}
	}
	return out
}
