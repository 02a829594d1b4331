package chat

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second // Time allowed to write a message to the peer.
	maxMessageSize = 512              // Clients only ever send control frames.
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for now (Dev mode)
	},
}

// Client is the WebSocket transport for a stream. Its read pump only watches for
// the peer going away; all writes come from the dispatcher goroutine.
type Client struct {
	Conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger
}

func newClient(conn *websocket.Conn, pingInterval time.Duration, logger *slog.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{Conn: conn, ctx: ctx, cancel: cancel, log: logger}
	go c.readPump(pongWaitFor(pingInterval))
	return c
}

// pongWaitFor keeps the read deadline comfortably above the ping period.
func pongWaitFor(pingInterval time.Duration) time.Duration {
	return (pingInterval * 10) / 9
}

func (c *Client) readPump(pongWait time.Duration) {
	defer c.cancel()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read error", "err", err)
			}
			return
		}
	}
}

func (c *Client) Send(ev Event) error {
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(wsEnvelope{Event: "message", Data: ev})
}

func (c *Client) Ping() error {
	return c.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Client) Context() context.Context {
	return c.ctx
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() {
	_ = c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
	_ = c.Conn.Close()
	c.cancel()
}
