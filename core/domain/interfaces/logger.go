package interfaces

// Logger is the tagged, leveled logger components write through. Messages
// are printf-style.
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)

	// Successf is shown whatever the configured level.
	Successf(format string, args ...any)

	// With returns a logger that adds the field to every entry.
	With(key string, value any) Logger
}
