// Package progress fans job progress out to API consumers. A bounded
// in-memory buffer with monotonic sequence numbers backs both delivery
// channels: long-poll waiters are woken on publish (push), and reconnecting
// clients replay missed events from their last cursor (pull).
package progress

import (
	"context"
	"sync"
	"time"
)

// Event is one job progress sample published to the hub.
type Event struct {
	Sequence        uint64    `json:"seq"`
	JobID           string    `json:"job_id"`
	Timestamp       time.Time `json:"ts"`
	Status          string    `json:"status"`
	Stage           string    `json:"stage,omitempty"`
	Percent         float64   `json:"percent"`
	Message         string    `json:"message,omitempty"`
	DownloadedBytes int64     `json:"downloaded_bytes,omitempty"`
	TotalBytes      int64     `json:"total_bytes,omitempty"`
	SpeedBPS        float64   `json:"speed_bps,omitempty"`
	ETASeconds      int64     `json:"eta_seconds,omitempty"`
	Terminal        bool      `json:"terminal,omitempty"`
	ErrorCode       string    `json:"error_code,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Filename        string    `json:"filename,omitempty"`
}

// Hub stores recent events and wakes waiters when new events arrive.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
}

// NewHub constructs a bounded in-memory progress fan-out buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends a new event to the hub and wakes all waiters.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Fetch returns events with sequence greater than since, optionally filtered
// to one job. When wait is true, Fetch blocks until at least one matching
// event is available or the context ends.
func (h *Hub) Fetch(ctx context.Context, jobID string, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.cond.Broadcast()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		events, next := h.snapshotLocked(jobID, since, limit)
		if len(events) > 0 || !wait {
			return events, next, contextError(ctx)
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Tail returns the most recent limit events for a job (or all jobs when jobID
// is empty) without blocking.
func (h *Hub) Tail(jobID string, limit int) ([]Event, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	matched := make([]Event, 0, limit)
	for i := len(h.buffer) - 1; i >= 0 && len(matched) < limit; i-- {
		if jobID != "" && h.buffer[i].JobID != jobID {
			continue
		}
		matched = append(matched, h.buffer[i])
	}
	// Reverse back into publish order.
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}
	return matched, h.nextSeq
}

// FirstSequence reports the smallest sequence number still buffered. Clients
// whose cursor predates it have missed events and should resync via the
// status endpoint.
func (h *Hub) FirstSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return h.nextSeq
	}
	return h.buffer[0].Sequence
}

func (h *Hub) snapshotLocked(jobID string, since uint64, limit int) ([]Event, uint64) {
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	var out []Event
	for _, evt := range h.buffer {
		if evt.Sequence <= since {
			continue
		}
		if jobID != "" && evt.JobID != jobID {
			continue
		}
		out = append(out, evt)
		if len(out) == limit {
			// The scan stopped short: resume from the last delivered
			// event so the events past the limit are not skipped.
			return out, evt.Sequence
		}
	}
	return out, h.nextSeq
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
