package logger

import (
	"context"
	"errors"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimestampFieldName = "timestamp"
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.LevelFieldMarshalFunc = func(l zerolog.Level) string {
		return strings.ToUpper(l.String())
	}
}

// Logger writes single-line JSON entries keyed by action.
type Logger struct {
	zl zerolog.Logger
}

// New creates a structured logger for the given service writing to stdout.
// APP_ENV=dev switches to a human-readable console writer.
func New(service string) *Logger {
	var w io.Writer = os.Stdout
	if os.Getenv("APP_ENV") == "dev" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(service, w)
}

// NewWithWriter is New with an explicit sink.
func NewWithWriter(service string, w io.Writer) *Logger {
	hn, err := os.Hostname()
	if err != nil || strings.TrimSpace(hn) == "" {
		hn = "unknown-hostname"
	}
	if strings.TrimSpace(service) == "" {
		service = "unknown-service"
	}

	zl := zerolog.New(w).With().
		Timestamp().
		Str("service", service).
		Str("hostname", hn).
		Logger()

	return &Logger{zl: zl}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// SetLevel applies a textual level (debug, info, error...). Call before the logger is shared.
func (l *Logger) SetLevel(level string) error {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "" {
		return nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	l.zl = l.zl.Level(lvl)
	return nil
}

// Debug writes a DEBUG line with optional details.
func (l *Logger) Debug(ctx context.Context, action, msg string, details any) {
	l.write(ctx, l.zl.Debug(), action, msg, details)
}

// Info writes an INFO line with optional details.
func (l *Logger) Info(ctx context.Context, action, msg string, details any) {
	l.write(ctx, l.zl.Info(), action, msg, details)
}

// Warn writes a WARN line with optional details.
func (l *Logger) Warn(ctx context.Context, action, msg string, details any) {
	l.write(ctx, l.zl.Warn(), action, msg, details)
}

// Error writes an ERROR line and attaches a short stack trace.
func (l *Logger) Error(ctx context.Context, action, msg string, err error, details any) {
	if err == nil {
		err = errors.New("unknown error")
	}
	ev := l.zl.Error().Dict("error", zerolog.Dict().
		Str("msg", strings.TrimSpace(err.Error())).
		Str("stack", shortStack(3, 12)))
	l.write(ctx, ev, action, msg, details)
}

func (l *Logger) write(ctx context.Context, ev *zerolog.Event, action, msg string, details any) {
	if ev == nil {
		return
	}
	ev = ev.Str("action", safeAction(action))
	if id := requestID(ctx); id != "" {
		ev = ev.Str("request_id", id)
	}
	if id := orderID(ctx); id != "" {
		ev = ev.Str("order_id", id)
	}
	if details != nil {
		ev = ev.Interface("details", details)
	}
	ev.Msg(strings.TrimSpace(msg))
}

// ------------ Context helpers -------------

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "logistics_request_id"
	ctxKeyOrderID   ctxKey = "logistics_order_id"
)

// WithRequestID returns a new context carrying request_id.
func (l *Logger) WithRequestID(ctx context.Context, reqID string) context.Context {
	if strings.TrimSpace(reqID) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, reqID)
}

// WithOrderID returns a new context carrying order_id.
func (l *Logger) WithOrderID(ctx context.Context, id string) context.Context {
	if strings.TrimSpace(id) == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyOrderID, id)
}

// RequestID returns the request id carried by ctx, if any.
func RequestID(ctx context.Context) string {
	return requestID(ctx)
}

func requestID(ctx context.Context) string {
	return ctxString(ctx, ctxKeyRequestID)
}

func orderID(ctx context.Context) string {
	return ctxString(ctx, ctxKeyOrderID)
}

func ctxString(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	if s, ok := ctx.Value(key).(string); ok {
		return s
	}
	return ""
}

// ----- Small utilities -----

func safeAction(a string) string {
	a = strings.TrimSpace(a)
	if a == "" {
		return "unspecified"
	}
	return a
}

// shortStack renders up to max frames as "func@file:line" joined by " | ".
func shortStack(skip, max int) string {
	pcs := make([]uintptr, max)
	n := runtime.Callers(skip, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var b strings.Builder
	for {
		f, more := frames.Next()
		if b.Len() > 0 {
			b.WriteString(" | ")
		}
		b.WriteString(f.Function)
		b.WriteByte('@')
		b.WriteString(trimPath(f.File))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(f.Line))
		if !more {
			break
		}
	}
	return b.String()
}

func trimPath(p string) string {
	if i := strings.LastIndex(p, "/internal/"); i >= 0 {
		return p[i+1:]
	}
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
