// Package log provides structured logging for the worker.
//
// Two logger variants are available:
//   - Logger: non-sugared zap.Logger for the hot path (lease loop, distributor)
//   - SugaredLogger: printf-style logging for bootstrap/CLI surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap.Logger. Request-scoped fields (root_id, uid, depth)
// are attached via With rather than baked in at construction, since a
// single worker logger outlives many requests.
type Logger struct {
	zap *zap.Logger
	cfg Config
}

// SugaredLogger provides printf-style logging for bootstrap and CLI output.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// Config controls logger construction, decoded from the backend config
// document's logging section.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`
	// Development enables human-readable console output instead of JSON.
	Development bool `yaml:"development"`
}

// New builds a Logger writing JSON (or console, if cfg.Development) to
// os.Stderr at the configured level.
func New(cfg Config) *Logger {
	return newWithWriter(cfg, os.Stderr)
}

// WithOutput returns a new Logger with a different output writer, preserving
// level and encoding. Useful in tests that want to capture log output.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := zapcore.NewCore(encoderFor(l.cfg.Development), zapcore.AddSync(w), zapLevel(l.cfg.Level))
	return &Logger{zap: l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core })), cfg: l.cfg}
}

func newWithWriter(cfg Config, w io.Writer) *Logger {
	core := zapcore.NewCore(encoderFor(cfg.Development), zapcore.AddSync(w), zapLevel(cfg.Level))
	return &Logger{zap: zap.New(core), cfg: cfg}
}

func encoderFor(development bool) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	if development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func zapLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// With returns a Logger carrying the given request-scoped field in addition
// to any already attached.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{zap: l.zap.With(zap.Any(key, value)), cfg: l.cfg}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}
