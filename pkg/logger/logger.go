// Package logger defines the logging contract used across the engine and
// provides implementations backed by log/slog and zerolog.
package logger

// Logger is implemented by anything the engine can log through.
// Arguments follow the log/slog convention of alternating keys and values.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
	Debug(msg string, args ...any)
}
