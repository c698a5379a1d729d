// Package logging builds slog loggers for Spool with console and JSON
// handlers, standardized attribute keys, progress sampling, and log file
// retention.
package logging
