package logger

// Level mirrors the usual syslog-ish ladder. Disabled turns the logger off
// entirely, which the simulation harness uses for quiet runs.
type Level int8

const (
	Disabled Level = iota - 1
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// Logger is the logging facade used across the bot. Concrete backends live
// in subpackages so that core and strategy code never import a logging
// library directly.
type Logger interface {
	WithField(key string, value any) Logger
	WithFields(fields map[string]any) Logger
	WithError(err error) Logger

	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Fatal(args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)

	SetLevel(level Level)
	GetLevel() Level
}
