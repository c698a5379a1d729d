// Package progress buffers job progress events and distributes them to
// pull (cursor replay) and push (long-poll) consumers.
package progress
