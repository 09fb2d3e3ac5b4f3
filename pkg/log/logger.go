package log

// Logger receives protocol events. Implementations must be safe for
// concurrent use; Log runs on the connection goroutine, so slow work
// stalls that connection.
type Logger interface {
	Log(event Event)
}

// NoopLogger discards all events.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(Event)

// Log calls f(event).
func (f LoggerFunc) Log(event Event) { f(event) }

// Tee combines loggers into one. Nil entries and NoopLogger are dropped.
// It returns nil when nothing remains, so callers can keep their
// "logger != nil" checks, and the logger itself when only one remains.
func Tee(loggers ...Logger) Logger {
	var kept []Logger
	for _, l := range loggers {
		switch l.(type) {
		case nil, NoopLogger, *NoopLogger:
			continue
		}
		kept = append(kept, l)
	}

	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return tee(kept)
	}
}

type tee []Logger

func (t tee) Log(event Event) {
	for _, l := range t {
		l.Log(event)
	}
}

var (
	_ Logger = NoopLogger{}
	_ Logger = LoggerFunc(nil)
	_ Logger = tee(nil)
)
