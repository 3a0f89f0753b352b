package interfaces

// Logger is the minimal structured-logging contract the rest of the
// module depends on. Implementations live outside the packages that log
// so any logger can be swapped in (or a recording dummy in tests).
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	// With returns a child logger that attaches the given fields to
	// every record it emits.
	With(fields ...Field) Logger
}

// Field is one structured key/value attribute on a log record.
type Field struct {
	Key   string
	Value any
}
