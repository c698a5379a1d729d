// Package daemon orchestrates the spool background services: the workflow
// manager, progress hub, HTTP API server, and single-instance locking. It is
// the shared backend for both the HTTP API and the IPC control socket.
package daemon
