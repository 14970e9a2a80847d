package notifications

import (
	"context"
	"sync"
	"time"
)

// Hub stores recent messages and wakes waiters when new ones arrive. Clients
// that were not listening catch up from the buffer; anything older than the
// buffer is lost, which is acceptable because the queue store stays the
// source of truth.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Message
	nextSeq  uint64
}

// NewHub constructs a bounded in-memory message buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Publish appends msg, assigning its sequence and timestamp.
func (h *Hub) Publish(_ context.Context, msg Message) error {
	h.Post(msg)
	return nil
}

// Post appends msg and returns it with sequence and timestamp filled in.
func (h *Hub) Post(msg Message) Message {
	if h == nil {
		return msg
	}
	h.mu.Lock()
	h.nextSeq++
	msg.Sequence = h.nextSeq
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, msg)
	h.cond.Broadcast()
	h.mu.Unlock()
	return msg
}

// Fetch returns messages with sequence greater than since. When wait is true
// it blocks until at least one message is available or ctx ends.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Message, uint64, error) {
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
				h.mu.Lock()
				h.cond.Broadcast()
				h.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		msgs, next := h.snapshotLocked(since, limit)
		if len(msgs) > 0 || !wait {
			return msgs, next, contextError(ctx)
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

// Tail returns the most recent limit messages without blocking.
func (h *Hub) Tail(limit int) ([]Message, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.buffer) == 0 {
		return nil, h.nextSeq
	}
	start := len(h.buffer) - limit
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(h.buffer)-start)
	copy(out, h.buffer[start:])
	return out, h.nextSeq
}

// LastSequence reports the newest assigned sequence.
func (h *Hub) LastSequence() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.nextSeq
}

func (h *Hub) snapshotLocked(since uint64, limit int) ([]Message, uint64) {
	startIdx := -1
	for i, msg := range h.buffer {
		if msg.Sequence > since {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil, h.nextSeq
	}
	end := startIdx + limit
	if end > len(h.buffer) {
		end = len(h.buffer)
	}
	out := make([]Message, end-startIdx)
	copy(out, h.buffer[startIdx:end])
	return out, out[len(out)-1].Sequence
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
