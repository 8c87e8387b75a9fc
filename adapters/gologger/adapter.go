package gologger

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

type Options struct {
	Level  string
	Format string
	Writer io.Writer
	Exit   func(code int)
}

// SlogLogger adapts a slog.Logger to the glog contracts. Fields attached
// with WithFields are emitted in key order.
type SlogLogger struct {
	logger *slog.Logger
	exit   func(code int)
}

// NewSlogLogger writes to opts.Writer, stderr by default, as JSON unless
// Format is "text".
func NewSlogLogger(opts Options) *SlogLogger {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}
	var handler slog.Handler = slog.NewJSONHandler(writer, handlerOpts)
	if strings.EqualFold(strings.TrimSpace(opts.Format), "text") {
		handler = slog.NewTextHandler(writer, handlerOpts)
	}
	exit := opts.Exit
	if exit == nil {
		exit = os.Exit
	}
	return &SlogLogger{logger: slog.New(handler), exit: exit}
}

// ParseLevel maps trace and debug to slog debug; unknown levels are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace", "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *SlogLogger) Trace(msg string, args ...any) {
	l.logger.Debug(msg, append(args, "trace", true)...)
}

func (l *SlogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *SlogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *SlogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *SlogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

func (l *SlogLogger) Fatal(msg string, args ...any) {
	l.logger.Error(msg, append(args, "fatal", true)...)
	l.exit(1)
}

func (l *SlogLogger) WithContext(context.Context) glog.Logger {
	return l
}

func (l *SlogLogger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	return &SlogLogger{logger: l.logger.With(args...), exit: l.exit}
}

// Provider hands out named children of one SlogLogger.
type Provider struct {
	root *SlogLogger
}

func NewProvider(root *SlogLogger) *Provider {
	return &Provider{root: root}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	if p == nil || p.root == nil {
		return glog.Nop()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return p.root
	}
	return &SlogLogger{logger: p.root.logger.With("logger", name), exit: p.root.exit}
}

var (
	_ glog.Logger         = (*SlogLogger)(nil)
	_ glog.FieldsLogger   = (*SlogLogger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
