// Package workflow schedules queued jobs onto runner goroutines with
// bounded concurrency, keeps heartbeats fresh while jobs run, and sweeps
// expired terminal jobs through the janitor.
package workflow
