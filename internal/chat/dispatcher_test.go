package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"pollchat/internal/apperr"
	"pollchat/internal/user"
)

type fakeDirectory struct {
	known map[int]bool
	fail  atomic.Bool
}

func newFakeDirectory(ids ...int) *fakeDirectory {
	d := &fakeDirectory{known: make(map[int]bool)}
	for _, id := range ids {
		d.known[id] = true
	}
	return d
}

func (d *fakeDirectory) FindUser(ctx context.Context, id int) (*user.User, error) {
	if d.fail.Load() {
		return nil, apperr.Store("find user", errors.New("connection reset"))
	}
	if !d.known[id] {
		return nil, apperr.ErrNotFound
	}
	return &user.User{ID: id, Username: "user"}, nil
}

type fakeSink struct {
	ctx     context.Context
	events  chan Event
	pings   chan struct{}
	sendErr error
}

func newFakeSink(ctx context.Context) *fakeSink {
	return &fakeSink{ctx: ctx, events: make(chan Event, 16), pings: make(chan struct{}, 16)}
}

func (s *fakeSink) Send(ev Event) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.events <- ev
	return nil
}

func (s *fakeSink) Ping() error {
	select {
	case s.pings <- struct{}{}:
	default:
	}
	return nil
}

func (s *fakeSink) Context() context.Context { return s.ctx }

func newTestDispatcher(q *Queue, users Directory, poll, ping time.Duration) *Dispatcher {
	return NewDispatcher(q, users, DispatcherConfig{PollInterval: poll, PingInterval: ping}, slog.New(slog.DiscardHandler))
}

func runAsync(d *Dispatcher, st *Stream, sink Sink) <-chan State {
	done := make(chan State, 1)
	go func() { done <- d.Run(st, sink) }()
	return done
}

func waitState(t *testing.T, done <-chan State) State {
	t.Helper()
	select {
	case s := <-done:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
		return 0
	}
}

func TestDispatcherOpenUnknownRecipient(t *testing.T) {
	d := newTestDispatcher(NewQueue(0), newFakeDirectory(1, 2), 10*time.Millisecond, time.Hour)

	_, err := d.Open(context.Background(), "s1", 999)
	if !errors.Is(err, apperr.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser, got %v", err)
	}
}

func TestDispatcherDeliversAndDisconnects(t *testing.T) {
	q := NewQueue(0)
	d := newTestDispatcher(q, newFakeDirectory(1, 2), 10*time.Millisecond, time.Hour)

	st, err := d.Open(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if st.State() != StateOpen {
		t.Fatalf("expected open state, got %s", st.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	sink := newFakeSink(ctx)
	done := runAsync(d, st, sink)

	date := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q.Enqueue(Message{ID: 7, FromID: 1, ToID: 2, Content: "hi", Date: date})
	q.Enqueue(Message{ID: 8, FromID: 2, ToID: 1, Content: "not for this stream"})

	select {
	case ev := <-sink.events:
		want := Event{ID: "7", FromID: "1", ToID: "2", Content: "hi", Date: "2024-05-01T12:00:00Z"}
		if ev != want {
			t.Fatalf("event = %+v, want %+v", ev, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	if q.Len() != 1 {
		t.Fatalf("expected only the other recipient's message left, len=%d", q.Len())
	}
	if st.State() != StatePolling {
		t.Fatalf("expected polling state, got %s", st.State())
	}

	cancel()
	if s := waitState(t, done); s != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", s)
	}
	if st.State() != StateDisconnected {
		t.Fatalf("stream state = %s, want disconnected", st.State())
	}
}

func TestDispatcherCloseEndsStream(t *testing.T) {
	d := newTestDispatcher(NewQueue(0), newFakeDirectory(2), 10*time.Millisecond, time.Hour)
	st, err := d.Open(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	done := runAsync(d, st, newFakeSink(context.Background()))
	st.Close()
	st.Close()

	if s := waitState(t, done); s != StateClosed {
		t.Fatalf("expected closed, got %s", s)
	}
}

func TestDispatcherRequeuesOnSendFailure(t *testing.T) {
	q := NewQueue(0)
	d := newTestDispatcher(q, newFakeDirectory(1, 2), 10*time.Millisecond, time.Hour)
	st, err := d.Open(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	q.Enqueue(msg(1, 1, 2))
	q.Enqueue(msg(2, 1, 2))

	sink := newFakeSink(context.Background())
	sink.sendErr = errors.New("broken pipe")

	if s := waitState(t, runAsync(d, st, sink)); s != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", s)
	}
	if got := ids(q.DrainFor(2)); !equalInts(got, []int{1, 2}) {
		t.Fatalf("requeued = %v, want [1 2]", got)
	}
}

func TestDispatcherSkipsPollWhenLookupFails(t *testing.T) {
	q := NewQueue(0)
	users := newFakeDirectory(1, 2)
	d := newTestDispatcher(q, users, 5*time.Millisecond, time.Hour)
	st, err := d.Open(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	users.fail.Store(true)
	q.Enqueue(msg(1, 1, 2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := newFakeSink(ctx)
	done := runAsync(d, st, sink)

	time.Sleep(50 * time.Millisecond)
	if q.Len() != 1 {
		t.Fatalf("message must stay queued while lookups fail, len=%d", q.Len())
	}
	select {
	case ev := <-sink.events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}

	users.fail.Store(false)
	select {
	case ev := <-sink.events:
		if ev.ID != "1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not recover after lookup failure")
	}

	cancel()
	waitState(t, done)
}

func TestDispatcherSendsKeepAlive(t *testing.T) {
	d := newTestDispatcher(NewQueue(0), newFakeDirectory(2), time.Hour, 5*time.Millisecond)
	st, err := d.Open(context.Background(), "s1", 2)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sink := newFakeSink(ctx)
	done := runAsync(d, st, sink)

	select {
	case <-sink.pings:
	case <-time.After(2 * time.Second):
		t.Fatal("no keep-alive sent")
	}
	cancel()
	waitState(t, done)
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateOpen:         "open",
		StatePolling:      "polling",
		StateClosed:       "closed",
		StateDisconnected: "disconnected",
		State(42):         "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int32(s), got, want)
		}
	}
}
