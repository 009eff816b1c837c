// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer FlowLogger with contextual
// helpers (run, component) and domain specific helpers for participant calls
// and flow runs.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts "debug", "info", "warn"/"warning" or "error" to a
// LogLevel. Unknown values yield LogLevelInfo and an error.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "info", "":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface used across conclave.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// CallLogger is implemented by loggers with a dedicated record for
// participant calls. The executor prefers it over a plain Warn/Debug line.
type CallLogger interface {
	LogParticipantCall(instanceID, provider string, round int, dur time.Duration, err error, args ...any)
}

// FlowExecutionLogger is implemented by loggers with a dedicated record for
// finished flow runs.
type FlowExecutionLogger interface {
	LogFlowExecution(topology string, rounds int, dur time.Duration, outcome string, err error, args ...any)
}

// StackLogger is implemented by loggers that can attach a stack trace.
type StackLogger interface {
	ErrorWithStack(err error, msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// FlowLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It should be cheap to copy via With* methods.
type FlowLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
	runID     string
	flowName  string
}

var (
	_ CallLogger          = (*FlowLogger)(nil)
	_ FlowExecutionLogger = (*FlowLogger)(nil)
	_ StackLogger         = (*FlowLogger)(nil)
)

// LoggerConfig configures construction of a FlowLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	RunID       string
	FlowName    string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline text info level configuration on stderr.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "text", Output: os.Stderr, CustomAttrs: map[string]any{}}
}

// NewLogger builds a FlowLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *FlowLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}
	ctx := make(map[string]any, len(cfg.CustomAttrs))
	for k, v := range cfg.CustomAttrs {
		ctx[k] = v
	}
	return &FlowLogger{logger: slog.New(handler), level: cfg.Level, context: ctx, component: cfg.Component, runID: cfg.RunID, flowName: cfg.FlowName}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *FlowLogger) clone() *FlowLogger {
	nl := *l
	nl.context = make(map[string]any, len(l.context))
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *FlowLogger) WithContext(key string, value any) *FlowLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (executor, flow, runner, etc.).
func (l *FlowLogger) WithComponent(c string) *FlowLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithRun attaches run and flow identifiers.
func (l *FlowLogger) WithRun(runID, flowName string) *FlowLogger {
	nl := l.clone()
	nl.runID = runID
	nl.flowName = flowName
	return nl
}

func (l *FlowLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+3)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}
	if l.flowName != "" {
		attrs = append(attrs, slog.String("flow", l.flowName))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

// log emits msg with the logger's attributes followed by args, which are
// key/value pairs as accepted by slog.
func (l *FlowLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	attrs := l.buildAttrs()
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *FlowLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *FlowLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *FlowLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *FlowLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// ErrorWithStack logs an error plus a runtime stack snapshot.
func (l *FlowLogger) ErrorWithStack(err error, msg string, args ...any) {
	if l.level > LogLevelError {
		return
	}
	stack := make([]byte, 4096)
	n := runtime.Stack(stack, false)
	args = append(args, "error", err.Error(), "error_type", fmt.Sprintf("%T", err), "stack_trace", string(stack[:n]))
	l.log(slog.LevelError, true, msg, args...)
}

// LogParticipantCall records latency and outcome of one participant call.
// Extra args are appended as key/value pairs.
func (l *FlowLogger) LogParticipantCall(instanceID, provider string, round int, dur time.Duration, err error, args ...any) {
	attrs := append([]any{"instance_id", instanceID, "provider", provider, "round", round, "duration", dur, "success", err == nil}, args...)
	if err != nil {
		l.log(slog.LevelWarn, l.level <= LogLevelWarn, "Participant call failed", append(attrs, "error", err.Error())...)
		return
	}
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, "Participant call completed", attrs...)
}

// LogFlowExecution records aggregate flow run metrics.
func (l *FlowLogger) LogFlowExecution(topology string, rounds int, dur time.Duration, outcome string, err error, args ...any) {
	attrs := append([]any{"topology", topology, "round_count", rounds, "duration", dur, "outcome", outcome}, args...)
	if err != nil {
		l.log(slog.LevelError, l.level <= LogLevelError, "Flow execution failed", append(attrs, "error", err.Error())...)
		return
	}
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, "Flow execution completed", attrs...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// NewSlogLogger creates a new FlowLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *FlowLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
