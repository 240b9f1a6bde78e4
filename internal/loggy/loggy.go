// Package loggy is a thin log/slog wrapper shared by every mermaidnest package.
// It keeps one process-wide logger for package-level calls and hands out
// instance loggers (With/WithGroup) for components such as the sync scheduler.
package loggy

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

var (
	globalLogger *Logger
	globalMu     sync.RWMutex
)

// Config configures the logger
type Config struct {
	Level      slog.Level
	Format     string // "json" or "text"
	Output     string // "stdout", "stderr", or a file path
	AddSource  bool   // Include caller file:line in each record
	TimeFormat string // Empty keeps slog's default
}

// DefaultConfig returns a default configuration for the logger
func DefaultConfig() Config {
	return Config{
		Level:      slog.LevelInfo,
		Format:     "text",
		Output:     "stderr",
		AddSource:  true,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger
type Logger struct {
	slogger   *slog.Logger
	addSource bool
}

// Init builds a logger from cfg and installs it as the global logger. On error
// the global logger is replaced with a noop logger so callers can continue.
func Init(cfg Config) error {
	logger, err := New(cfg)
	if err != nil {
		NewNoopLogger()
		return err
	}
	SetGlobalLogger(logger)
	return nil
}

// New builds a logger from cfg without touching the global logger
func New(cfg Config) (*Logger, error) {
	output, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	return NewWithWriter(output, cfg), nil
}

// NewWithWriter builds a logger that writes to w; cfg.Output is ignored
func NewWithWriter(w io.Writer, cfg Config) *Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level}

	if cfg.TimeFormat != "" {
		format := cfg.TimeFormat
		opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					return slog.String(a.Key, t.Format(format))
				}
			}
			return a
		}
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{slogger: slog.New(handler), addSource: cfg.AddSource}
}

func openOutput(output string) (io.Writer, error) {
	switch output {
	case "", "stderr":
		return os.Stderr, nil
	case "stdout":
		return os.Stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// NewNoopLogger creates and installs a logger that discards all output, useful for testing
func NewNoopLogger() *Logger {
	noop := Discard()
	SetGlobalLogger(noop)
	return noop
}

// Discard returns a logger that drops everything without touching the global logger
func Discard() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError})
	return &Logger{slogger: slog.New(handler)}
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func (l *Logger) emit(level slog.Level, msg string, args ...any) {
	if l == nil || l.slogger == nil {
		return
	}
	ctx := context.Background()
	if !l.slogger.Enabled(ctx, level) {
		return
	}

	r := slog.NewRecord(time.Now(), level, msg, 0)
	if l.addSource {
		// emit <- Logger.Info <- caller
		r.AddAttrs(slog.String("source", caller(3)))
	}
	r.Add(args...)
	_ = l.slogger.Handler().Handle(ctx, r)
}

// Debug logs at debug level
func Debug(msg string, args ...any) { GetGlobalLogger().emit(slog.LevelDebug, msg, args...) }

// Info logs at info level
func Info(msg string, args ...any) { GetGlobalLogger().emit(slog.LevelInfo, msg, args...) }

// Warn logs at warn level
func Warn(msg string, args ...any) { GetGlobalLogger().emit(slog.LevelWarn, msg, args...) }

// Error logs at error level
func Error(msg string, args ...any) { GetGlobalLogger().emit(slog.LevelError, msg, args...) }

// With returns a child of the global logger with the given attributes
func With(args ...any) *Logger {
	return GetGlobalLogger().With(args...)
}

// WithGroup returns a child of the global logger with the given group
func WithGroup(name string) *Logger {
	return GetGlobalLogger().WithGroup(name)
}

func (l *Logger) Debug(msg string, args ...any) { l.emit(slog.LevelDebug, msg, args...) }

func (l *Logger) Info(msg string, args ...any) { l.emit(slog.LevelInfo, msg, args...) }

func (l *Logger) Warn(msg string, args ...any) { l.emit(slog.LevelWarn, msg, args...) }

func (l *Logger) Error(msg string, args ...any) { l.emit(slog.LevelError, msg, args...) }

func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.slogger == nil {
		return l
	}
	return &Logger{slogger: l.slogger.With(args...), addSource: l.addSource}
}

func (l *Logger) WithGroup(name string) *Logger {
	if l == nil || l.slogger == nil {
		return l
	}
	return &Logger{slogger: l.slogger.WithGroup(name), addSource: l.addSource}
}

// WithError attaches err to the logger
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.With("error", err.Error())
}

// Handler returns the underlying slog.Handler
func (l *Logger) Handler() slog.Handler {
	return l.slogger.Handler()
}
