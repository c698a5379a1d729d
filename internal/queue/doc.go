// Package queue persists download jobs in SQLite and provides the lifecycle
// transitions the workflow manager relies on: claiming queued jobs, recording
// progress and heartbeats, cooperative cancellation, and retention cleanup.
package queue
