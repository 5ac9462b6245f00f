package log

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger and stamps every record with a component name.
type Logger struct {
	*slog.Logger
	component string
}

// Config holds logger configuration
type Config struct {
	Level     slog.Level
	Component string
	Handler   slog.Handler
}

// New creates a logger for the given component. When Handler is nil a
// text handler writing to stdout is used.
func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.Level,
		})
	}
	if config.Component == "" {
		config.Component = ComponentApp
	}

	return &Logger{
		Logger:    slog.New(handler).With(FieldComponent, config.Component),
		component: config.Component,
	}
}

// With returns a new logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		component: l.component,
	}
}

// WithComponent returns a new logger stamped with a different component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(FieldComponent, component),
		component: component,
	}
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}

// SetDefault installs the logger as the process-wide slog default.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

// ParseLevel maps a level name to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
