package chat

import (
	"iter"
	"sync"
)

// Ledger mirrors every message accepted during this process lifetime. It starts
// empty on boot; the store stays the source of truth.
type Ledger struct {
	mu       sync.RWMutex
	messages []Message
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) Append(m Message) {
	l.mu.Lock()
	l.messages = append(l.messages, m)
	l.mu.Unlock()
}

// ReceivedBy iterates the messages addressed to userID as of the call. The
// sequence can be ranged over repeatedly and ignores later appends.
func (l *Ledger) ReceivedBy(userID int) iter.Seq[Message] {
	l.mu.RLock()
	// entries below len are never rewritten, so the prefix is safe to share
	snapshot := l.messages[:len(l.messages):len(l.messages)]
	l.mu.RUnlock()

	return func(yield func(Message) bool) {
		for _, m := range snapshot {
			if m.ToID != userID {
				continue
			}
			if !yield(m) {
				return
			}
		}
	}
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
