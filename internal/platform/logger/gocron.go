package logger

import (
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

// gocronLogger implements gocron.Logger on top of slog.
type gocronLogger struct {
	log *slog.Logger
}

// NewGocronLogger returns a gocron.Logger that writes scheduler logs through log.
//
//nolint:ireturn // gocron's option takes the interface
func NewGocronLogger(log *slog.Logger) gocron.Logger {
	return &gocronLogger{log: log.With("component", "scheduler")}
}

func (l *gocronLogger) Debug(msg string, args ...any) { l.log.Debug(msg, normalizeArgs(args)...) }
func (l *gocronLogger) Info(msg string, args ...any)  { l.log.Info(msg, normalizeArgs(args)...) }
func (l *gocronLogger) Warn(msg string, args ...any)  { l.log.Warn(msg, normalizeArgs(args)...) }
func (l *gocronLogger) Error(msg string, args ...any) { l.log.Error(msg, normalizeArgs(args)...) }

// normalizeArgs pads an odd key/value list so slog does not emit !BADKEY entries.
func normalizeArgs(args []any) []any {
	if len(args)%2 == 0 {
		return args
	}
	out := make([]any, 0, len(args)+1)
	out = append(out, args[:len(args)-1]...)
	return append(out, "detail", args[len(args)-1])
}
