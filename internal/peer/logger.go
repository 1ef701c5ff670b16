package peer

import (
	"context"
	"fmt"
	"log/slog"

	pionlog "github.com/pion/logging"
)

// levelTrace sits below slog's debug level.
const levelTrace = slog.LevelDebug - 4

// slogFactory routes pion's internal logging into slog, one scope per
// subsystem (ice, dtls, sctp...).
type slogFactory struct {
	log *slog.Logger
}

func (f slogFactory) NewLogger(scope string) pionlog.LeveledLogger {
	return slogLogger{log: f.log.With(slog.String("pion", scope))}
}

type slogLogger struct {
	log *slog.Logger
}

func (l slogLogger) logf(level slog.Level, format string, args ...any) {
	ctx := context.Background()
	if !l.log.Enabled(ctx, level) {
		return
	}
	l.log.Log(ctx, level, fmt.Sprintf(format, args...))
}

func (l slogLogger) Trace(msg string) { l.logf(levelTrace, "%s", msg) }
func (l slogLogger) Tracef(format string, args ...any) { l.logf(levelTrace, format, args...) }
func (l slogLogger) Debug(msg string) { l.logf(slog.LevelDebug, "%s", msg) }
func (l slogLogger) Debugf(format string, args ...any) { l.logf(slog.LevelDebug, format, args...) }
func (l slogLogger) Info(msg string) { l.logf(slog.LevelInfo, "%s", msg) }
func (l slogLogger) Infof(format string, args ...any) { l.logf(slog.LevelInfo, format, args...) }
func (l slogLogger) Warn(msg string) { l.logf(slog.LevelWarn, "%s", msg) }
func (l slogLogger) Warnf(format string, args ...any) { l.logf(slog.LevelWarn, format, args...) }
func (l slogLogger) Error(msg string) { l.logf(slog.LevelError, "%s", msg) }
func (l slogLogger) Errorf(format string, args ...any) { l.logf(slog.LevelError, format, args...) }
