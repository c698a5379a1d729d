// Package ipc implements the daemon control channel: JSON-RPC over a Unix
// domain socket, with a typed client used by the CLI management commands.
package ipc
