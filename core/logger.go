package core

// Logger is the app-wide leveled logger.
// Backends may inspect args for well-known types (eg. an acting user) before printing.
type Logger interface {
	Enable(enabled bool)
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
