package chat

import (
	"strconv"
	"time"
)

// ---------------------------------------------
// Database & API Models
// ---------------------------------------------

type Message struct {
	ID      int       `json:"id"`
	FromID  int       `json:"fromID"`
	ToID    int       `json:"toID"`
	Content string    `json:"content"`
	Date    time.Time `json:"date"`
	Seen    bool      `json:"seen"`
}

type SendRequest struct {
	FromID  int    `json:"fromID"`
	ToID    int    `json:"toID"`
	Content string `json:"content"`
}

type SendResponse struct {
	ID int `json:"id"`
}

// Conversation summarises one counterpart's thread for a user.
type Conversation struct {
	Messages        []Message `json:"messages"`
	Username        string    `json:"username"`
	ExternalUID     string    `json:"firebase_uid"`
	LastMessage     string    `json:"last_message"`
	LastMessageDate time.Time `json:"last_message_date"`
	UnseenMessages  int       `json:"unseen_messages"`
}

// ---------------------------------------------
// Stream Models
// ---------------------------------------------

// Event is the payload of one delivered message. Every field is a string.
type Event struct {
	ID      string `json:"id"`
	FromID  string `json:"fromID"`
	ToID    string `json:"toID"`
	Content string `json:"content"`
	Date    string `json:"date"`
}

func NewEvent(m Message) Event {
	return Event{
		ID:      strconv.Itoa(m.ID),
		FromID:  strconv.Itoa(m.FromID),
		ToID:    strconv.Itoa(m.ToID),
		Content: m.Content,
		Date:    m.Date.UTC().Format(time.RFC3339Nano),
	}
}

// wsEnvelope frames an event on the WebSocket transport.
type wsEnvelope struct {
	Event string `json:"event"`
	Data  Event  `json:"data"`
}
