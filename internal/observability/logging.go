// Package observability provides logging, metrics, and tracing.
package observability

import (
	"context"
	"log/slog"
	"os"
)

// Logger is the structured logger used throughout the application.
var Logger *slog.Logger

// LogContextKey is a type for context keys read by the logging handler.
type LogContextKey string

// Context keys for logging
const (
	RequestIDKey LogContextKey = "request_id"
	UsernameKey  LogContextKey = "username"
	TraceIDKey   LogContextKey = "trace_id"
)

// ctxHandler is a slog.Handler that adds context values to the log record.
type ctxHandler struct {
	slog.Handler
}

// Handle adds context values to the record before passing it to the underlying handler.
func (h *ctxHandler) Handle(ctx context.Context, r slog.Record) error {
	if rid, ok := ctx.Value(RequestIDKey).(string); ok {
		r.AddAttrs(slog.String("request_id", rid))
	}
	if user, ok := ctx.Value(UsernameKey).(string); ok {
		r.AddAttrs(slog.String("username", user))
	}
	if tid, ok := ctx.Value(TraceIDKey).(string); ok {
		r.AddAttrs(slog.String("trace_id", tid))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *ctxHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ctxHandler{h.Handler.WithAttrs(attrs)}
}

func (h *ctxHandler) WithGroup(name string) slog.Handler {
	return &ctxHandler{h.Handler.WithGroup(name)}
}

func init() {
	Logger = NewLogger(os.Getenv("APP_ENV"), slog.LevelInfo)
}

// NewLogger builds a context-aware logger: JSON in production, text otherwise.
func NewLogger(env string, level slog.Level) *slog.Logger {
	var handler slog.Handler
	if env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(WrapHandler(handler))
}

// WrapHandler adds the request-scoped attributes to every record h handles.
func WrapHandler(h slog.Handler) slog.Handler {
	return &ctxHandler{h}
}

// SetLogger replaces the global logger.
func SetLogger(l *slog.Logger) {
	Logger = l
}

// LoggingConfig defines which types of automated logging are enabled.
type LoggingConfig struct {
	EnableStoreLogging bool
}

// Config holds the current logging configuration.
var Config = LoggingConfig{
	EnableStoreLogging: true,
}

// StoreLogger provides structured logging for datastore operations.
type StoreLogger struct {
	backend string
}

// NewStoreLogger creates a new StoreLogger for the given backend.
func NewStoreLogger(backend string) *StoreLogger {
	return &StoreLogger{backend: backend}
}

// LogRead logs a datastore read.
func (l *StoreLogger) LogRead(ctx context.Context, path string, leaves int) {
	if !Config.EnableStoreLogging {
		return
	}
	Logger.DebugContext(ctx, "datastore read",
		slog.String("backend", l.backend),
		slog.String("path", path),
		slog.Int("leaves", leaves),
	)
}

// LogWrite logs a datastore merge-write.
func (l *StoreLogger) LogWrite(ctx context.Context, path string, leaves int) {
	if !Config.EnableStoreLogging {
		return
	}
	Logger.DebugContext(ctx, "datastore write",
		slog.String("backend", l.backend),
		slog.String("path", path),
		slog.Int("leaves", leaves),
	)
}

// LogDelete logs a datastore delete.
func (l *StoreLogger) LogDelete(ctx context.Context, path string) {
	if !Config.EnableStoreLogging {
		return
	}
	Logger.DebugContext(ctx, "datastore delete",
		slog.String("backend", l.backend),
		slog.String("path", path),
	)
}

// LogError logs a failed datastore operation.
func (l *StoreLogger) LogError(ctx context.Context, err error, operation, path string) {
	if !Config.EnableStoreLogging {
		return
	}
	Logger.ErrorContext(ctx, "datastore error",
		slog.String("backend", l.backend),
		slog.String("operation", operation),
		slog.String("path", path),
		slog.String("error", err.Error()),
	)
}
