package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a component-scoped logger backed by zap
type Logger struct {
	base      *zap.Logger
	sugar     *zap.SugaredLogger
	level     zap.AtomicLevel
	component string
}

var (
	defaultLogger *Logger
	defaultOnce   sync.Once
	mu            sync.RWMutex
)

// New builds a logger from a level (debug, info, warn, error) and a format (json, console)
func New(level, format string) (*Logger, error) {
	cfg, err := newConfig(level, format)
	if err != nil {
		return nil, err
	}

	base, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return FromZap(base, cfg.Level), nil
}

func newConfig(level, format string) (zap.Config, error) {
	var zapLevel zapcore.Level
	if level == "" {
		level = "info"
	}
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return zap.Config{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	switch format {
	case "console":
		cfg = zap.NewDevelopmentConfig()
	case "json", "":
		cfg = zap.NewProductionConfig()
	default:
		return zap.Config{}, fmt.Errorf("invalid log format %q: must be \"json\" or \"console\"", format)
	}

	// no stack traces on Error entries
	cfg.DisableStacktrace = true
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	return cfg, nil
}

// FromZap wraps an existing zap logger. The level is only used by SetLevel.
func FromZap(base *zap.Logger, level zap.AtomicLevel) *Logger {
	return &Logger{
		base:      base,
		sugar:     base.Sugar(),
		level:     level,
		component: "default",
	}
}

// InitLogger installs l as the default logger
func InitLogger(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = l
}

// GetLogger returns the default logger instance, building an info-level
// json logger on first use when InitLogger was never called
func GetLogger() *Logger {
	defaultOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if defaultLogger != nil {
			return
		}
		l, err := New("info", "json")
		if err != nil {
			l = FromZap(zap.NewNop(), zap.NewAtomicLevel())
		}
		defaultLogger = l
	})

	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// WithComponent creates a new logger with the specified component name
func (l *Logger) WithComponent(component string) *Logger {
	base := l.base.With(zap.String("component", component))
	return &Logger{
		base:      base,
		sugar:     base.Sugar(),
		level:     l.level,
		component: component,
	}
}

// WithError returns a logger that attaches err to every entry
func (l *Logger) WithError(err error) *Logger {
	base := l.base.With(zap.Error(err))
	return &Logger{
		base:      base,
		sugar:     base.Sugar(),
		level:     l.level,
		component: l.component,
	}
}

// SetLevel changes the level of this logger and every logger derived from it
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

// Zap exposes the structured logger for field-based call sites
func (l *Logger) Zap() *zap.Logger {
	return l.base
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.base.Sync()
}

// Debug logs debug level messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.sugar.Debugf(format, args...)
}

// Info logs info level messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.sugar.Infof(format, args...)
}

// Warn logs warning level messages
func (l *Logger) Warn(format string, args ...interface{}) {
	l.sugar.Warnf(format, args...)
}

// Error logs error level messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.sugar.Errorf(format, args...)
}
