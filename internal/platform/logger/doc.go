// Package logger provides structured logging functionality for the application.
//
// It utilizes Go's standard library log/slog package to implement structured JSON logging
// with configurable log levels, carries loggers through contexts, and fans a
// record out to several handlers so task-scoped sinks can sit alongside the
// process-wide stream.
package logger
