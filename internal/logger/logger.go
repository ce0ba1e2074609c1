// Package logger is a thin slog wrapper shared by the simulator and its CLI.
package logger

import (
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

// Env variables read by FromEnv.
const (
	EnvLevel  = "CRYPTO_TRADER_LOG_LEVEL"
	EnvFormat = "CRYPTO_TRADER_LOG_FORMAT"
)

// Logger wraps slog.Logger with domain helpers.
type Logger struct {
	*slog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level     slog.Level
	Format    string // "json" or "text"
	AddSource bool
	// Output defaults to stderr so reports on stdout stay clean.
	Output io.Writer
}

// DefaultConfig returns default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:  slog.LevelInfo,
		Format: "json",
	}
}

// ParseLevel maps debug|info|warn|error to a slog level. Unknown names are info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromEnv builds a config from CRYPTO_TRADER_LOG_LEVEL and CRYPTO_TRADER_LOG_FORMAT.
func FromEnv() *Config {
	cfg := DefaultConfig()
	if v := os.Getenv(EnvLevel); v != "" {
		cfg.Level = ParseLevel(v)
	}
	if strings.EqualFold(os.Getenv(EnvFormat), "text") {
		cfg.Format = "text"
	}
	return cfg
}

// New creates a new structured logger.
func New(config *Config) *Logger {
	if config == nil {
		config = DefaultConfig()
	}

	opts := &slog.HandlerOptions{
		Level:     config.Level,
		AddSource: config.AddSource,
	}

	var output io.Writer = os.Stderr
	if config.Output != nil {
		output = config.Output
	}

	var handler slog.Handler
	if config.Format == "text" {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(&Config{Output: io.Discard, Level: slog.LevelError + 4})
}

func (l *Logger) with(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// WithFields returns a logger with additional fields, in key order.
func (l *Logger) WithFields(fields map[string]any) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]any, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return l.with(args...)
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value any) *Logger {
	return l.with(key, value)
}

// WithError returns a logger with an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.with("error", err.Error())
}

// Component tags log lines with the emitting package.
func (l *Logger) Component(name string) *Logger {
	return l.with("component", name)
}

// Symbol tags log lines with an instrument.
func (l *Logger) Symbol(symbol string) *Logger {
	return l.with("symbol", symbol)
}

// Strategy tags log lines with a strategy id.
func (l *Logger) Strategy(id string) *Logger {
	return l.with("strategy", id)
}

// Run tags log lines with a run id.
func (l *Logger) Run(id string) *Logger {
	return l.with("run_id", id)
}

// Service tags every line with the service name and deployment environment.
func (l *Logger) Service(name, env string) *Logger {
	if env == "" {
		return l.with("service", name)
	}
	return l.with("service", name, "env", env)
}

// Trade logs a closed trade.
func (l *Logger) Trade(fields map[string]any) {
	l.WithFields(fields).Info("trade")
}

var defaultLogger = New(DefaultConfig())

// SetDefault sets the default global logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the default global logger.
func Default() *Logger {
	return defaultLogger
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

// Fatal logs an error and exits.
func Fatal(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
	os.Exit(1)
}

// Component returns a component logger from the default logger.
func Component(name string) *Logger {
	return defaultLogger.Component(name)
}
