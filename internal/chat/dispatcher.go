package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pollchat/internal/apperr"
	"pollchat/internal/user"
)

const (
	DefaultPollInterval = time.Second
	DefaultPingInterval = 30 * time.Second
)

// Directory resolves user ids. user.Service and user.Repository satisfy it.
type Directory interface {
	FindUser(ctx context.Context, id int) (*user.User, error)
}

// Sink is one open client connection. The dispatcher never calls it
// concurrently.
type Sink interface {
	Send(Event) error
	// Ping writes a transport-level keep-alive.
	Ping() error
	// Context is cancelled when the peer goes away.
	Context() context.Context
}

type State int32

const (
	StateOpen State = iota
	StatePolling
	StateClosed
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StatePolling:
		return "polling"
	case StateClosed:
		return "closed"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Stream is the dispatcher state for one connection.
type Stream struct {
	ID          string
	RecipientID int

	state     atomic.Int32
	closeOnce sync.Once
	closed    chan struct{}
}

func newStream(id string, recipientID int) *Stream {
	return &Stream{ID: id, RecipientID: recipientID, closed: make(chan struct{})}
}

func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) setState(st State) {
	s.state.Store(int32(st))
}

// Close ends the stream from the server side.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

type DispatcherConfig struct {
	PollInterval time.Duration
	PingInterval time.Duration
}

type Dispatcher struct {
	queue *Queue
	users Directory
	cfg   DispatcherConfig
	log   *slog.Logger
}

func NewDispatcher(queue *Queue, users Directory, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	return &Dispatcher{queue: queue, users: users, cfg: cfg, log: logger}
}

// Open validates the recipient. An unknown recipient is the only failure that
// ends a stream before it starts.
func (d *Dispatcher) Open(ctx context.Context, id string, recipientID int) (*Stream, error) {
	if _, err := d.users.FindUser(ctx, recipientID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrUnknownUser
		}
		return nil, err
	}
	st := newStream(id, recipientID)
	st.setState(StateOpen)
	return st, nil
}

// Run polls the queue for st's recipient until the peer disconnects or the
// stream is closed, and returns the terminal state.
func (d *Dispatcher) Run(st *Stream, sink Sink) State {
	log := d.log.With("stream_id", st.ID, "recipient_id", st.RecipientID)
	ctx := sink.Context()

	st.setState(StatePolling)
	final := d.loop(ctx, st, sink, log)
	st.setState(final)
	log.Debug("stream ended", "state", final.String())
	return final
}

func (d *Dispatcher) loop(ctx context.Context, st *Stream, sink Sink, log *slog.Logger) State {
	poll := time.NewTimer(0)
	defer poll.Stop()
	ping := time.NewTicker(d.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return StateDisconnected
		case <-st.closed:
			return StateClosed
		case <-ping.C:
			if err := sink.Ping(); err != nil {
				log.Debug("keep-alive failed", "err", err)
				return StateDisconnected
			}
		case <-poll.C:
			if ctx.Err() != nil {
				return StateDisconnected
			}
			if !d.pollOnce(ctx, st, sink, log) {
				return StateDisconnected
			}
			poll.Reset(d.cfg.PollInterval)
		}
	}
}

// pollOnce drains and emits one batch. It returns false when the sink failed.
func (d *Dispatcher) pollOnce(ctx context.Context, st *Stream, sink Sink, log *slog.Logger) bool {
	if _, err := d.users.FindUser(ctx, st.RecipientID); err != nil {
		log.Warn("recipient lookup failed, skipping poll", "err", err)
		return true
	}

	batch := d.queue.DrainFor(st.RecipientID)
	for i, m := range batch {
		if err := sink.Send(NewEvent(m)); err != nil {
			d.queue.Requeue(batch[i:])
			log.Debug("emit failed, requeued undelivered messages", "count", len(batch)-i, "err", err)
			return false
		}
	}
	if len(batch) > 0 {
		log.Debug("delivered messages", "count", len(batch))
	}
	return true
}
