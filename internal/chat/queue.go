package chat

import "sync"

// Queue holds messages no stream has observed yet. All access goes through a
// single lock so a drain is atomic with respect to other drains and enqueues.
type Queue struct {
	mu      sync.Mutex
	pending []Message
	limit   int
}

// NewQueue returns a queue holding at most limit entries; limit <= 0 means
// unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{limit: limit}
}

// Enqueue appends m. When the queue is full the oldest entry is evicted and
// returned so the caller can log it.
func (q *Queue) Enqueue(m Message) *Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	var evicted *Message
	if q.limit > 0 && len(q.pending) >= q.limit {
		old := q.pending[0]
		evicted = &old
		q.pending = append(q.pending[:0], q.pending[1:]...)
	}
	q.pending = append(q.pending, m)
	return evicted
}

// DrainFor removes and returns every entry addressed to userID, in insertion
// order. Entries for other recipients keep their relative order.
func (q *Queue) DrainFor(userID int) []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	var drained []Message
	kept := q.pending[:0]
	for _, m := range q.pending {
		if m.ToID == userID {
			drained = append(drained, m)
			continue
		}
		kept = append(kept, m)
	}
	// zero the tail so dropped messages can be collected
	clear(q.pending[len(kept):])
	q.pending = kept
	return drained
}

// Requeue puts messages back at the head of the queue. Used when a stream
// drained them but could not emit them.
func (q *Queue) Requeue(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	merged := make([]Message, 0, len(msgs)+len(q.pending))
	merged = append(merged, msgs...)
	q.pending = append(merged, q.pending...)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DrainAll empties the queue and returns what was left.
func (q *Queue) DrainAll() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	left := q.pending
	q.pending = nil
	return left
}
