package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// sseSink writes events in text/event-stream framing.
type sseSink struct {
	w   http.ResponseWriter
	rc  *http.ResponseController
	ctx context.Context
	now func() time.Time
}

func newSSESink(w http.ResponseWriter, r *http.Request) *sseSink {
	rc := http.NewResponseController(w)
	// the stream outlives the server's WriteTimeout
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	return &sseSink{w: w, rc: rc, ctx: r.Context(), now: time.Now}
}

func (s *sseSink) Send(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "id: %s\nevent: message\ndata: %s\n\n", ev.ID, b); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Ping writes an SSE comment line, which clients ignore.
func (s *sseSink) Ping() error {
	if _, err := fmt.Fprintf(s.w, ": ping - %s\n\n", strconv.FormatInt(s.now().Unix(), 10)); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseSink) Context() context.Context {
	return s.ctx
}
