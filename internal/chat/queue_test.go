package chat

import (
	"sync"
	"testing"
)

func msg(id, from, to int) Message {
	return Message{ID: id, FromID: from, ToID: to, Content: "m"}
}

func ids(msgs []Message) []int {
	out := make([]int, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQueueDrainForKeepsOrder(t *testing.T) {
	q := NewQueue(0)
	q.Enqueue(msg(1, 1, 2))
	q.Enqueue(msg(2, 1, 3))
	q.Enqueue(msg(3, 3, 2))
	q.Enqueue(msg(4, 2, 3))

	got := q.DrainFor(2)
	if want := []int{1, 3}; !equalInts(ids(got), want) {
		t.Fatalf("DrainFor(2) = %v, want %v", ids(got), want)
	}
	if q.Len() != 2 {
		t.Fatalf("expected 2 entries left, got %d", q.Len())
	}

	rest := q.DrainFor(3)
	if want := []int{2, 4}; !equalInts(ids(rest), want) {
		t.Fatalf("DrainFor(3) = %v, want %v", ids(rest), want)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestQueueDrainForUnknownRecipient(t *testing.T) {
	q := NewQueue(0)
	q.Enqueue(msg(1, 1, 2))

	if got := q.DrainFor(9); len(got) != 0 {
		t.Fatalf("expected nothing for recipient 9, got %v", ids(got))
	}
	if q.Len() != 1 {
		t.Fatalf("queue must be untouched, len=%d", q.Len())
	}
}

func TestQueueConcurrentDrainIsExactlyOnce(t *testing.T) {
	const n = 500
	q := NewQueue(0)
	for i := 1; i <= n; i++ {
		q.Enqueue(msg(i, 1, 2))
	}

	var (
		mu   sync.Mutex
		seen = make(map[int]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				for _, m := range q.DrainFor(2) {
					mu.Lock()
					seen[m.ID]++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct messages drained, got %d", n, len(seen))
	}
	for id, c := range seen {
		if c != 1 {
			t.Fatalf("message %d drained %d times", id, c)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}

func TestQueueEvictsOldestWhenFull(t *testing.T) {
	q := NewQueue(2)
	if ev := q.Enqueue(msg(1, 1, 2)); ev != nil {
		t.Fatalf("unexpected eviction: %v", ev)
	}
	q.Enqueue(msg(2, 1, 2))

	ev := q.Enqueue(msg(3, 1, 2))
	if ev == nil || ev.ID != 1 {
		t.Fatalf("expected message 1 evicted, got %v", ev)
	}
	if got := ids(q.DrainFor(2)); !equalInts(got, []int{2, 3}) {
		t.Fatalf("DrainFor(2) = %v, want [2 3]", got)
	}
}

func TestQueueRequeueGoesToFront(t *testing.T) {
	q := NewQueue(0)
	q.Enqueue(msg(3, 1, 2))
	q.Requeue([]Message{msg(1, 1, 2), msg(2, 1, 2)})
	q.Requeue(nil)

	if got := ids(q.DrainFor(2)); !equalInts(got, []int{1, 2, 3}) {
		t.Fatalf("DrainFor(2) = %v, want [1 2 3]", got)
	}
}

func TestQueueDrainAll(t *testing.T) {
	q := NewQueue(0)
	q.Enqueue(msg(1, 1, 2))
	q.Enqueue(msg(2, 2, 1))

	if got := q.DrainAll(); len(got) != 2 {
		t.Fatalf("expected 2 leftovers, got %d", len(got))
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue after DrainAll")
	}
}
