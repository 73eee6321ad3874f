package reactor

import "github.com/joeycumines/logiface"

// LogifyLogger adapts a *logiface.Logger[logiface.Event] to the reactor
// Logger interface, for callers who already run logiface elsewhere in
// their process (zerolog/logrus/slog/stumpy writers, see the
// logiface-* adapters) and want reactor diagnostics to flow through the
// same sinks instead of a separate WriterLogger.
//
// logiface is deliberately kept out of the default hot path: the built-in
// WriterLogger has no generic-event allocation overhead, and most
// embedders of a reactor have no logiface logger configured at all. This
// type exists purely as an opt-in bridge.
type LogifyLogger struct {
	logger *logiface.Logger[logiface.Event]
}

// NewLogifyLogger wraps an existing logiface logger.
func NewLogifyLogger(logger *logiface.Logger[logiface.Event]) *LogifyLogger {
	return &LogifyLogger{logger: logger}
}

// IsEnabled implements Logger.
func (l *LogifyLogger) IsEnabled(level LogLevel) bool {
	return l.logger.Level() >= toLogifyLevel(level)
}

// Log implements Logger, translating a LogEntry into a logiface builder
// chain.
func (l *LogifyLogger) Log(entry LogEntry) {
	b := l.logger.Build(toLogifyLevel(entry.Level))
	if b == nil {
		return
	}
	if entry.FiberID != 0 {
		b = b.Int64("fiber_id", entry.FiberID)
	}
	if entry.TimerID != 0 {
		b = b.Int64("timer_id", entry.TimerID)
	}
	if entry.Category != "" {
		b = b.Str("category", entry.Category)
	}
	for k, v := range entry.Context {
		b = b.Any(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

// toLogifyLevel maps the reactor's four-level LogLevel onto logiface's
// syslog-derived Level scale.
func toLogifyLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
