package loggerutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/Marlliton/slogpretty"
	"github.com/chendingplano/dataviewer/api/ApiTypes"
	"github.com/chendingplano/dataviewer/api/ApiUtils"
)

// Singleton handlers - created once and reused
var (
	prettyLogger *slog.Logger
	jsonLogger   *slog.Logger
	textLogger   *slog.Logger

	prettyOnce sync.Once
	jsonOnce   sync.Once
	textOnce   sync.Once
)

// JimoLogger wraps slog with a request id prefix and the caller location.
type JimoLogger struct {
	logger     *slog.Logger
	reqID      string
	call_depth int
}

// CreateLogger returns a logger for the given format ("pretty", "json" or
// "text"). Unknown formats fall back to pretty.
func CreateLogger(format string) *JimoLogger {
	return &JimoLogger{
		logger:     getLoggerHandler(format),
		reqID:      ApiUtils.GenerateRequestID("e"),
		call_depth: 2,
	}
}

// New wraps an existing slog handler. Tests use it with io.Discard.
func New(handler slog.Handler) *JimoLogger {
	return &JimoLogger{
		logger:     slog.New(handler),
		reqID:      ApiUtils.GenerateRequestID("e"),
		call_depth: 2,
	}
}

// NewNopLogger discards everything.
func NewNopLogger() *JimoLogger {
	return New(slog.NewTextHandler(io.Discard, nil))
}

// WithReqID returns a copy of the logger tagged with reqID.
func (l *JimoLogger) WithReqID(reqID string) *JimoLogger {
	return &JimoLogger{
		logger:     l.logger,
		reqID:      reqID,
		call_depth: l.call_depth,
	}
}

func (l *JimoLogger) ReqID() string {
	return l.reqID
}

// Slog exposes the underlying logger for libraries that take *slog.Logger.
func (l *JimoLogger) Slog() *slog.Logger {
	return l.logger
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

var logLevel = new(slog.LevelVar)

// SetLevel changes the level of every handler created by this package.
func SetLevel(level string) {
	logLevel.Set(ParseLevel(level))
}

// levelHandler gates a handler on logLevel. slogpretty only takes a fixed
// level, so the pretty handler is built at debug and filtered here.
type levelHandler struct {
	slog.Handler
}

func (h levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= logLevel.Level() && h.Handler.Enabled(ctx, level)
}

func (h levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return levelHandler{h.Handler.WithAttrs(attrs)}
}

func (h levelHandler) WithGroup(name string) slog.Handler {
	return levelHandler{h.Handler.WithGroup(name)}
}

func newHandler(format string, out io.Writer) slog.Handler {
	switch format {
	case ApiTypes.LogFormatJSON:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: logLevel})

	case ApiTypes.LogFormatText:
		return slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel})

	default:
		// Source: https://github.com/Marlliton/slogpretty
		return levelHandler{slogpretty.New(out, &slogpretty.Options{
			Level:      slog.LevelDebug,
			Colorful:   true,
			TimeFormat: slogpretty.DefaultTimeFormat,
		})}
	}
}

func getLoggerHandler(format string) *slog.Logger {
	switch format {
	case ApiTypes.LogFormatJSON:
		jsonOnce.Do(func() {
			jsonLogger = slog.New(newHandler(format, ApiUtils.LogOutput()))
		})
		return jsonLogger

	case ApiTypes.LogFormatText:
		textOnce.Do(func() {
			textLogger = slog.New(newHandler(format, ApiUtils.LogOutput()))
		})
		return textLogger

	case ApiTypes.LogFormatPretty, "":
		prettyOnce.Do(func() {
			prettyLogger = slog.New(newHandler(ApiTypes.LogFormatPretty, ApiUtils.LogOutput()))
		})
		return prettyLogger

	default:
		slog.Error("***** Alarm",
			"message", "Invalid log format",
			"format", format)
		return getLoggerHandler(ApiTypes.LogFormatPretty)
	}
}

func (l *JimoLogger) Debug(message string, args ...any) {
	msg := fmt.Sprintf("[req=%s]", l.reqID)
	logArgs := append([]any{"message", message, "call_flow", GetCallStack(l.call_depth)}, args...)
	l.logger.Debug(msg, logArgs...)
}

// Info logs an informational message with the caller location and additional key-value pairs
func (l *JimoLogger) Info(message string, args ...any) {
	msg := fmt.Sprintf("[req=%s]", l.reqID)
	logArgs := append([]any{"message", message, "call_flow", GetCallStack(l.call_depth)}, args...)
	l.logger.Info(msg, logArgs...)
}

// Warn logs a warning message with the caller location and additional key-value pairs
func (l *JimoLogger) Warn(message string, args ...any) {
	msg := fmt.Sprintf("[req=%s]", l.reqID)
	logArgs := append([]any{"message", message, "call_flow", GetCallStack(l.call_depth)}, args...)
	l.logger.Warn(msg, logArgs...)
}

// Error logs an error message with the caller location and additional key-value pairs
func (l *JimoLogger) Error(message string, args ...any) {
	msg := fmt.Sprintf("[req=%s] ***** Alarm", l.reqID)
	logArgs := append([]any{"message", message, "call_flow", GetCallStack(l.call_depth)}, args...)
	l.logger.Error(msg, logArgs...)
}

// GetCallStack returns "file:line" of the caller depth frames up, or the
// two frames above it as "file:line->file:line" when depth is 3.
func GetCallStack(depth int) string {
	_, file1, line1, ok1 := runtime.Caller(depth)
	if !ok1 {
		return "empty stack"
	}
	filename1 := filepath.Base(file1)
	if depth < 3 {
		return fmt.Sprintf("%s:%d", filename1, line1)
	}

	_, file2, line2, ok2 := runtime.Caller(depth + 1)
	if !ok2 {
		return fmt.Sprintf("%s:%d", filename1, line1)
	}
	return fmt.Sprintf("%s:%d->%s:%d", filepath.Base(file2), line2, filename1, line1)
}
