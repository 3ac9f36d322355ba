// Package log provides the named, coloured loggers used by every component.
package log

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const colorReset = "\033[0m"

// Logger is the logging surface components depend on.
type Logger interface {
	Debug(msg string)
	Info(msg string)
	Warning(msg string)
	Error(msg string)
}

// ZapLogger is a Logger backed by zap.
type ZapLogger struct {
	s *zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

type options struct {
	level zapcore.Level
}

// Option configures New.
type Option func(*options)

// WithLevel sets the minimum level: debug, info, warn or error.
func WithLevel(level string) Option {
	return func(o *options) {
		if l, err := zapcore.ParseLevel(level); err == nil {
			o.level = l
		}
	}
}

// New returns a logger that prefixes every line with [name] in the given
// ANSI colour. An empty colour leaves the prefix uncoloured.
func New(name, color string, w io.Writer, opts ...Option) (*ZapLogger, error) {
	if w == nil {
		return nil, fmt.Errorf("logger %s: nil writer", name)
	}
	o := options{level: zapcore.InfoLevel}
	for _, opt := range opts {
		opt(&o)
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
		EncodeName: func(n string, enc zapcore.PrimitiveArrayEncoder) {
			if color == "" {
				enc.AppendString("[" + n + "]")
				return
			}
			enc.AppendString(color + "[" + n + "]" + colorReset)
		},
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), o.level)
	return FromZap(zap.New(core).Named(name)), nil
}

// FromZap wraps an existing zap logger.
func FromZap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{s: l.Sugar()}
}

// NewNop returns a logger that discards everything.
func NewNop() *ZapLogger {
	return FromZap(zap.NewNop())
}

// RollingFile returns a size rotated log file writer.
func RollingFile(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     7, // days
	}
}

func (l *ZapLogger) Debug(msg string)   { l.s.Debug(msg) }
func (l *ZapLogger) Info(msg string)    { l.s.Info(msg) }
func (l *ZapLogger) Warning(msg string) { l.s.Warn(msg) }
func (l *ZapLogger) Error(msg string)   { l.s.Error(msg) }

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.s.Sync()
}
