// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. CodaiLogger adds component scoping and helpers for the
// recurring events of the engine: task transitions, agent calls and graph
// mutations.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
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

// ParseLevel maps a case-insensitive level name to a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger defines the minimal logging interface. Arguments are slog style
// alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
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

// CodaiLogger wraps slog.Logger adding contextual cloning helpers and domain
// convenience methods. With* methods return copies.
type CodaiLogger struct {
	logger    *slog.Logger
	level     LogLevel
	context   map[string]any
	component string
}

// LoggerConfig configures construction of a CodaiLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig returns a baseline JSON info level configuration writing to stderr.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr, CustomAttrs: map[string]any{}}
}

// NewLogger builds a CodaiLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *CodaiLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}

	ctx := map[string]any{}
	maps.Copy(ctx, cfg.CustomAttrs)

	return &CodaiLogger{logger: slog.New(handler), level: cfg.Level, context: ctx, component: cfg.Component}
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

func (l *CodaiLogger) clone() *CodaiLogger {
	nl := *l
	nl.context = maps.Clone(l.context)
	if nl.context == nil {
		nl.context = map[string]any{}
	}
	return &nl
}

// WithContext adds a key/value attribute that will be attached to every log entry.
func (l *CodaiLogger) WithContext(key string, value any) *CodaiLogger {
	nl := l.clone()
	nl.context[key] = value
	return nl
}

// WithComponent sets the logical component (graph, scheduler, router, etc.).
func (l *CodaiLogger) WithComponent(c string) *CodaiLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

func (l *CodaiLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+1)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *CodaiLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
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
func (l *CodaiLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *CodaiLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *CodaiLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *CodaiLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// EventLogger is implemented by loggers that handle the recurring engine
// events themselves. The package level helpers of the same names use it when
// the logger given to them implements it.
type EventLogger interface {
	Logger
	LogTaskTransition(taskID, agentID, from, to string, err error)
	LogAgentCall(agentID, taskID string, attempt int, dur time.Duration, err error)
	LogGraphMutation(kind, id string, err error)
	StartTimer(op string) func()
}

var _ EventLogger = (*CodaiLogger)(nil)

// LogTaskTransition records a task state change.
func (l *CodaiLogger) LogTaskTransition(taskID, agentID, from, to string, err error) {
	taskTransition(l, taskID, agentID, from, to, err)
}

// LogAgentCall records one agent execution attempt.
func (l *CodaiLogger) LogAgentCall(agentID, taskID string, attempt int, dur time.Duration, err error) {
	agentCall(l, agentID, taskID, attempt, dur, err)
}

// LogGraphMutation records a committed graph change.
func (l *CodaiLogger) LogGraphMutation(kind, id string, err error) {
	graphMutation(l, kind, id, err)
}

// StartTimer returns a closure that logs the elapsed duration when invoked.
func (l *CodaiLogger) StartTimer(op string) func() {
	return timer(l, op)
}

// LogTaskTransition records a task state change on l.
func LogTaskTransition(l Logger, taskID, agentID, from, to string, err error) {
	if el, ok := l.(EventLogger); ok {
		el.LogTaskTransition(taskID, agentID, from, to, err)
		return
	}
	taskTransition(l, taskID, agentID, from, to, err)
}

// LogAgentCall records one agent execution attempt on l.
func LogAgentCall(l Logger, agentID, taskID string, attempt int, dur time.Duration, err error) {
	if el, ok := l.(EventLogger); ok {
		el.LogAgentCall(agentID, taskID, attempt, dur, err)
		return
	}
	agentCall(l, agentID, taskID, attempt, dur, err)
}

// LogGraphMutation records a committed graph change on l.
func LogGraphMutation(l Logger, kind, id string, err error) {
	if el, ok := l.(EventLogger); ok {
		el.LogGraphMutation(kind, id, err)
		return
	}
	graphMutation(l, kind, id, err)
}

// StartTimer starts timing op on l. The returned func logs the elapsed time.
func StartTimer(l Logger, op string) func() {
	if el, ok := l.(EventLogger); ok {
		return el.StartTimer(op)
	}
	return timer(l, op)
}

func taskTransition(l Logger, taskID, agentID, from, to string, err error) {
	args := []any{"task_id", taskID, "agent_id", agentID, "from", from, "to", to}
	if err != nil {
		l.Error("Invalid task transition", append(args, "error", err.Error())...)
		return
	}
	l.Debug("Task transition", args...)
}

func agentCall(l Logger, agentID, taskID string, attempt int, dur time.Duration, err error) {
	args := []any{"agent_id", agentID, "task_id", taskID, "attempt", attempt, "duration", dur, "success", err == nil}
	if err != nil {
		l.Warn("Agent call failed", append(args, "error", err.Error())...)
		return
	}
	l.Debug("Agent call completed", args...)
}

func graphMutation(l Logger, kind, id string, err error) {
	if err != nil {
		l.Error("Graph mutation not persisted", "kind", kind, "id", id, "error", err.Error())
		return
	}
	l.Debug("Graph mutation", "kind", kind, "id", id)
}

func timer(l Logger, op string) func() {
	start := time.Now()
	return func() { l.Debug("Operation completed", "operation", op, "duration", time.Since(start)) }
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

// Scoped returns l scoped to component when l is a *CodaiLogger and l itself
// otherwise. A nil logger yields NoOpLogger.
func Scoped(l Logger, component string) Logger {
	switch tl := l.(type) {
	case nil:
		return NoOpLogger{}
	case *CodaiLogger:
		return tl.WithComponent(component)
	default:
		return l
	}
}

// NewSlogLogger creates a CodaiLogger with the given level and format.
func NewSlogLogger(level LogLevel, format string, addSource bool) *CodaiLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}
