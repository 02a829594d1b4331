package chat

import (
	"context"
	"sync"
	"time"

	"pollchat/internal/apperr"
	"pollchat/internal/db"
)

type Repository struct {
	db *db.Database

	// writeMu keeps id order and date order in agreement.
	writeMu sync.Mutex
	clock   *monotonicClock
}

func NewRepository(database *db.Database) *Repository {
	return &Repository{db: database, clock: newMonotonicClock(time.Now)}
}

// CreateMessage stores a message. onStored, when non-nil, runs before the next
// message can be stored, so whatever it feeds sees messages in id order.
func (r *Repository) CreateMessage(ctx context.Context, fromID, toID int, content string, onStored func(Message)) (*Message, error) {
	if err := r.checkUsers(ctx, fromID, toID); err != nil {
		return nil, err
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	msg := &Message{FromID: fromID, ToID: toID, Content: content, Date: r.clock.Next()}
	query := r.db.Rebind("INSERT INTO messages (from_id, to_id, content, sent_at, seen) VALUES (?, ?, ?, ?, ?) RETURNING id")

	err := r.db.Conn.QueryRowContext(ctx, query, fromID, toID, content, msg.Date, false).Scan(&msg.ID)
	if err != nil {
		// a user can vanish between the check and the insert
		if db.IsForeignKeyViolation(err) {
			return nil, apperr.ErrInvalidReference
		}
		return nil, apperr.Store("insert message", err)
	}
	if onStored != nil {
		onStored(*msg)
	}
	return msg, nil
}

func (r *Repository) checkUsers(ctx context.Context, fromID, toID int) error {
	want := 2
	if fromID == toID {
		want = 1
	}
	var n int
	query := r.db.Rebind("SELECT COUNT(*) FROM users WHERE id = ? OR id = ?")
	if err := r.db.Conn.QueryRowContext(ctx, query, fromID, toID).Scan(&n); err != nil {
		return apperr.Store("check users", err)
	}
	if n != want {
		return apperr.ErrInvalidReference
	}
	return nil
}

func (r *Repository) ListMessages(ctx context.Context) ([]Message, error) {
	return r.list(ctx, "list messages", "SELECT id, from_id, to_id, content, sent_at, seen FROM messages ORDER BY id")
}

func (r *Repository) ListReceivedMessages(ctx context.Context, userID int) ([]Message, error) {
	return r.list(ctx, "list received messages",
		r.db.Rebind("SELECT id, from_id, to_id, content, sent_at, seen FROM messages WHERE to_id = ? ORDER BY id"), userID)
}

func (r *Repository) ListSentMessages(ctx context.Context, userID int) ([]Message, error) {
	return r.list(ctx, "list sent messages",
		r.db.Rebind("SELECT id, from_id, to_id, content, sent_at, seen FROM messages WHERE from_id = ? ORDER BY id"), userID)
}

func (r *Repository) list(ctx context.Context, op, query string, args ...any) ([]Message, error) {
	rows, err := r.db.Conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.FromID, &m.ToID, &m.Content, &m.Date, &m.Seen); err != nil {
			return nil, apperr.Store(op, err)
		}
		m.Date = m.Date.UTC()
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store(op, err)
	}
	return messages, nil
}

// monotonicClock hands out strictly increasing UTC timestamps at microsecond
// precision, the finest both drivers round-trip.
type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func newMonotonicClock(now func() time.Time) *monotonicClock {
	return &monotonicClock{now: now}
}

func (c *monotonicClock) Next() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(time.Microsecond)
	if !t.After(c.last) {
		t = c.last.Add(time.Microsecond)
	}
	c.last = t
	return t
}
