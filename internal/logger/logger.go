package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds logger configuration
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or file path
}

var (
	// level is shared by every handler built by reconfigure, so SetLevel
	// takes effect without rebuilding the handler.
	level         slog.LevelVar
	currentFormat atomic.Value // stores "text" or "json"

	mu       sync.RWMutex
	handler  slog.Handler
	slogger  *slog.Logger
	output   io.Writer = os.Stdout
	logFile  *os.File
	useColor bool = true
)

func init() {
	level.Set(slog.LevelInfo)
	currentFormat.Store("text")
	useColor = isTerminal(os.Stdout.Fd())
	reconfigure()
}

// ParseLevel maps DEBUG, INFO, WARN or ERROR (any case) to a slog level.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN", "WARNING":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	default:
		return 0, false
	}
}

// reconfigure rebuilds the slog handler for the current output and format
func reconfigure() {
	mu.Lock()
	defer mu.Unlock()

	format, _ := currentFormat.Load().(string)
	opts := &slog.HandlerOptions{Level: &level}

	if format == "json" {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = NewColorTextHandler(output, opts, useColor)
	}
	slogger = slog.New(handler)
}

// Init initializes the logger with the given configuration.
// Output can be "stdout", "stderr", or a file path. A file opened by a
// previous Init is closed once the new output is in place.
func Init(cfg Config) error {
	if cfg.Output != "" {
		var (
			w     io.Writer
			file  *os.File
			color bool
		)
		switch strings.ToLower(cfg.Output) {
		case "stdout":
			w, color = os.Stdout, isTerminal(os.Stdout.Fd())
		case "stderr":
			w, color = os.Stderr, isTerminal(os.Stderr.Fd())
		default:
			f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
			}
			w, file = f, f
		}
		setOutput(w, file, color)
	}

	if cfg.Level != "" {
		if _, ok := ParseLevel(cfg.Level); !ok {
			return fmt.Errorf("invalid log level %q", cfg.Level)
		}
		SetLevel(cfg.Level)
	}
	if cfg.Format != "" {
		SetFormat(cfg.Format)
	}
	return nil
}

func setOutput(w io.Writer, file *os.File, color bool) {
	mu.Lock()
	previous := logFile
	output, logFile, useColor = w, file, color
	mu.Unlock()

	reconfigure()
	if previous != nil && previous != file {
		_ = previous.Close()
	}
}

// InitWithWriter initializes the logger with a custom io.Writer.
// This is primarily useful for testing.
func InitWithWriter(w io.Writer, lvl, format string, enableColor bool) {
	setOutput(w, nil, enableColor)
	if lvl != "" {
		SetLevel(lvl)
	}
	if format != "" {
		SetFormat(format)
	}
}

// SetLevel sets the minimum log level. Unknown names are ignored.
// It is safe to call while other goroutines log, which is how a
// configuration reload applies a new level.
func SetLevel(lvl string) {
	if l, ok := ParseLevel(lvl); ok {
		level.Set(l)
	}
}

// GetLevel returns the current minimum level name.
func GetLevel() string {
	return level.Level().String()
}

// SetFormat sets the output format (text or json)
func SetFormat(format string) {
	format = strings.ToLower(format)
	if format != "text" && format != "json" {
		return
	}
	currentFormat.Store(format)
	reconfigure()
}

func getLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// emit is the single path every helper below goes through. The level
// check happens before any context fields are gathered.
func emit(ctx context.Context, l slog.Level, msg string, args []any) {
	if l < level.Level() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	} else if lc := FromContext(ctx); lc != nil {
		args = append(lc.fields(), args...)
	}
	getLogger().Log(ctx, l, msg, args...)
}

// Debug logs at debug level with structured fields
// Usage: Debug("message", "key1", value1, "key2", value2)
func Debug(msg string, args ...any) { emit(context.Background(), slog.LevelDebug, msg, args) }

// Info logs at info level.
func Info(msg string, args ...any) { emit(context.Background(), slog.LevelInfo, msg, args) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { emit(context.Background(), slog.LevelWarn, msg, args) }

// Error logs at error level.
func Error(msg string, args ...any) { emit(context.Background(), slog.LevelError, msg, args) }

// DebugCtx logs at debug level, prefixing the fields of the LogContext
// carried by ctx (trace and span ids, procedure, path, session).
func DebugCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelDebug, msg, args)
}

func InfoCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelInfo, msg, args)
}

func WarnCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelWarn, msg, args)
}

func ErrorCtx(ctx context.Context, msg string, args ...any) {
	emit(ctx, slog.LevelError, msg, args)
}

// Duration returns duration since start time in milliseconds
func Duration(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
