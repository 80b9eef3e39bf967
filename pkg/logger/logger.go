package logger

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Level represents log level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Config holds logger configuration
type Config struct {
	Level  string
	Format string // "text" or "json"
	Output io.Writer
}

// Logger is a leveled structured logger. Child loggers created with
// WithComponent share the parent's writer and level.
type Logger struct {
	level     Level
	format    string
	component string
	logger    *log.Logger
}

// Field represents a structured logging field
type Field struct {
	Key   string
	Value interface{}
}

// New creates a new logger
func New(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	format := strings.ToLower(cfg.Format)
	if format != "json" {
		format = "text"
	}

	flags := log.LstdFlags
	if format == "json" {
		flags = 0
	}

	return &Logger{
		level:  parseLevel(cfg.Level),
		format: format,
		logger: log.New(output, "", flags),
	}
}

// OpenFile opens (or creates) a log file for appending, creating the parent
// directory when needed. An empty path returns os.Stdout.
func OpenFile(path string) (io.WriteCloser, error) {
	if path == "" {
		return os.Stdout, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// WithComponent creates a child logger. Nested components are joined with a
// dot, so gateway.WithComponent("dmr") logs as [gateway.dmr].
func (l *Logger) WithComponent(component string) *Logger {
	name := component
	if l.component != "" {
		name = l.component + "." + component
	}
	prefix := ""
	if l.format == "text" {
		prefix = fmt.Sprintf("[%s] ", name)
	}
	return &Logger{
		level:     l.level,
		format:    l.format,
		component: name,
		logger:    log.New(l.logger.Writer(), prefix, l.logger.Flags()),
	}
}

// Enabled reports whether messages at the given level are emitted.
func (l *Logger) Enabled(level Level) bool {
	return l.level <= level
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Field) {
	if l.level <= DebugLevel {
		l.log(DebugLevel, msg, fields...)
	}
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Field) {
	if l.level <= InfoLevel {
		l.log(InfoLevel, msg, fields...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Field) {
	if l.level <= WarnLevel {
		l.log(WarnLevel, msg, fields...)
	}
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Field) {
	if l.level <= ErrorLevel {
		l.log(ErrorLevel, msg, fields...)
	}
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	if l.format == "json" {
		entry := make(map[string]interface{}, len(fields)+4)
		entry["time"] = time.Now().Format(time.RFC3339)
		entry["level"] = strings.ToLower(level.String())
		entry["msg"] = msg
		if l.component != "" {
			entry["component"] = l.component
		}
		for _, f := range fields {
			entry[f.Key] = f.Value
		}
		b, err := json.Marshal(entry)
		if err != nil {
			l.logger.Printf(`{"level":"error","msg":"log marshal failed: %s"}`, err)
			return
		}
		l.logger.Print(string(b))
		return
	}

	if len(fields) == 0 {
		l.logger.Printf("[%s] %s", level, msg)
		return
	}

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", f.Key, f.Value))
	}
	l.logger.Printf("[%s] %s %s", level, msg, strings.Join(parts, " "))
}

func parseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// String creates a string field
func String(key, val string) Field {
	return Field{Key: key, Value: val}
}

// Int creates an int field
func Int(key string, val int) Field {
	return Field{Key: key, Value: val}
}

// Int64 creates an int64 field
func Int64(key string, val int64) Field {
	return Field{Key: key, Value: val}
}

// Uint64 creates a uint64 field
func Uint64(key string, val uint64) Field {
	return Field{Key: key, Value: val}
}

// Bool creates a bool field
func Bool(key string, val bool) Field {
	return Field{Key: key, Value: val}
}

// Uint creates a uint field
func Uint(key string, val uint) Field {
	return Field{Key: key, Value: val}
}

// Uint32 creates a uint32 field
func Uint32(key string, val uint32) Field {
	return Field{Key: key, Value: val}
}

// Uint8 creates a uint8 field
func Uint8(key string, val uint8) Field {
	return Field{Key: key, Value: val}
}

// Float64 creates a float64 field
func Float64(key string, val float64) Field {
	return Field{Key: key, Value: val}
}

// Duration creates a duration field rendered as a Go duration string
func Duration(key string, val time.Duration) Field {
	return Field{Key: key, Value: val.String()}
}

// Hex creates a field holding the hex encoding of b
func Hex(key string, b []byte) Field {
	return Field{Key: key, Value: hex.EncodeToString(b)}
}

// Error creates an error field
func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "nil"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any creates a field with any value
func Any(key string, val interface{}) Field {
	return Field{Key: key, Value: val}
}
