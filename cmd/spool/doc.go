// Package main hosts the spool CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in the foreground (serve) and
// translates management invocations into IPC calls against a running daemon:
// status reporting, queue inspection, cancellation, retries, and
// configuration scaffolding.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
