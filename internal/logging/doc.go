// Package logging constructs the slog loggers used across the service:
// a console handler for interactive use and a JSON handler for ingestion,
// optionally teeing into a log file under the configured log directory.
package logging
