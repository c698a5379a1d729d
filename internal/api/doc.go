// Package api defines the transport DTOs shared by the HTTP server, the
// IPC surface, and the CLI, plus the converters between queue records and
// their wire form.
package api
