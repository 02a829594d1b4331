package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrHubClosed = errors.New("hub is shutting down")

type HubConfig struct {
	QueueLimit   int
	PollInterval time.Duration
	PingInterval time.Duration
}

// Hub owns the in-memory delivery state: the ledger, the delivery queue and
// the set of live streams.
type Hub struct {
	ledger     *Ledger
	queue      *Queue
	dispatcher *Dispatcher

	mu      sync.RWMutex
	streams map[string]*Stream
	closing bool
	wg      sync.WaitGroup

	log *slog.Logger
}

type Stats struct {
	Streams int `json:"streams"`
	Pending int `json:"pending"`
	Ledger  int `json:"ledger"`
}

func NewHub(users Directory, cfg HubConfig, logger *slog.Logger) *Hub {
	logger = logger.With("component", "hub")
	queue := NewQueue(cfg.QueueLimit)
	return &Hub{
		ledger: NewLedger(),
		queue:  queue,
		dispatcher: NewDispatcher(queue, users, DispatcherConfig{
			PollInterval: cfg.PollInterval,
			PingInterval: cfg.PingInterval,
		}, logger),
		streams: make(map[string]*Stream),
		log:     logger,
	}
}

func (h *Hub) Ledger() *Ledger { return h.ledger }

func (h *Hub) Queue() *Queue { return h.queue }

// Publish records an accepted message and makes it visible to pollers.
func (h *Hub) Publish(m Message) {
	h.ledger.Append(m)
	if evicted := h.queue.Enqueue(m); evicted != nil {
		h.log.Warn("delivery queue full, dropped oldest pending message",
			"message_id", evicted.ID, "to_id", evicted.ToID)
	}
}

// Open validates the recipient and registers a new stream for it.
func (h *Hub) Open(ctx context.Context, recipientID int) (*Stream, error) {
	st, err := h.dispatcher.Open(ctx, uuid.NewString(), recipientID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return nil, ErrHubClosed
	}
	h.streams[st.ID] = st
	h.wg.Add(1)
	h.log.Info("stream opened", "stream_id", st.ID, "recipient_id", recipientID, "streams", len(h.streams))
	return st, nil
}

// Serve runs the dispatcher for a stream returned by Open and blocks until it
// ends.
func (h *Hub) Serve(st *Stream, sink Sink) State {
	defer func() {
		h.mu.Lock()
		delete(h.streams, st.ID)
		remaining := len(h.streams)
		h.mu.Unlock()
		h.wg.Done()
		h.log.Info("stream closed", "stream_id", st.ID, "recipient_id", st.RecipientID, "state", st.State().String(), "streams", remaining)
	}()
	return h.dispatcher.Run(st, sink)
}

// Abandon releases a stream that was opened but never served.
func (h *Hub) Abandon(st *Stream) {
	st.setState(StateDisconnected)
	h.mu.Lock()
	delete(h.streams, st.ID)
	h.mu.Unlock()
	h.wg.Done()
}

// PingInterval is the keep-alive period transports should use.
func (h *Hub) PingInterval() time.Duration {
	return h.dispatcher.cfg.PingInterval
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	streams := len(h.streams)
	h.mu.RUnlock()
	return Stats{Streams: streams, Pending: h.queue.Len(), Ledger: h.ledger.Len()}
}

// Shutdown closes every stream, waits for them to finish and logs whatever is
// still undelivered.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")

	h.mu.Lock()
	h.closing = true
	for _, st := range h.streams {
		st.Close()
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some streams may still be running")
		err = context.DeadlineExceeded
	}

	left := h.queue.DrainAll()
	for _, m := range left {
		h.log.Info("undelivered message at shutdown", "message_id", m.ID, "from_id", m.FromID, "to_id", m.ToID)
	}
	h.log.Info("hub shutdown completed", "undelivered", len(left))
	return err
}
