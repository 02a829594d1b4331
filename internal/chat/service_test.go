package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"pollchat/internal/apperr"
	"pollchat/internal/db/dbtest"
	"pollchat/internal/session"
)

func newTestService(t *testing.T) (*Service, *session.Memory) {
	t.Helper()
	database := dbtest.New(t)
	users := seedUsers(t, database, "alice", "bob")
	sessions := session.NewMemory()
	logger := slog.New(slog.DiscardHandler)
	hub := NewHub(users, HubConfig{PollInterval: 5 * time.Millisecond, PingInterval: time.Hour}, logger)
	return NewService(NewRepository(database), hub, users, sessions, logger), sessions
}

func TestServiceSendPublishes(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	m, err := svc.Send(ctx, SendRequest{FromID: 1, ToID: 2, Content: "hi"})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if m.ID != 1 {
		t.Fatalf("expected id 1, got %d", m.ID)
	}

	if got := svc.Hub().Stats(); got.Pending != 1 || got.Ledger != 1 {
		t.Fatalf("Stats() = %+v, want one pending and one in ledger", got)
	}
	pending := svc.Hub().Queue().DrainFor(2)
	if len(pending) != 1 || pending[0].Content != "hi" || pending[0].ID != m.ID {
		t.Fatalf("unexpected pending messages: %+v", pending)
	}
}

func TestServiceSendRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SendRequest
		want error
	}{
		{"missing sender", SendRequest{ToID: 2, Content: "hi"}, apperr.ErrValidation},
		{"missing recipient", SendRequest{FromID: 1, Content: "hi"}, apperr.ErrValidation},
		{"blank content", SendRequest{FromID: 1, ToID: 2, Content: "   "}, apperr.ErrValidation},
		{"unknown recipient", SendRequest{FromID: 1, ToID: 999, Content: "hi"}, apperr.ErrInvalidReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Send(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("Send() error = %v, want %v", err, tt.want)
			}
		})
	}

	if got := svc.Hub().Stats(); got.Pending != 0 || got.Ledger != 0 {
		t.Fatalf("rejected sends must not reach the hub: %+v", got)
	}
}

func TestServiceRecentMessagesNeedsSession(t *testing.T) {
	svc, sessions := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Send(ctx, SendRequest{FromID: 1, ToID: 2, Content: "hi"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if _, err := svc.RecentMessages(ctx, 2); !errors.Is(err, apperr.ErrUnknownUser) {
		t.Fatalf("expected ErrUnknownUser without session, got %v", err)
	}

	if err := sessions.Add(ctx, session.Session{UserID: 2, Username: "bob", Since: time.Now()}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	msgs, err := svc.RecentMessages(ctx, 2)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hi" {
		t.Fatalf("unexpected recent messages: %+v", msgs)
	}
}

func TestServiceConversations(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for _, req := range []SendRequest{
		{FromID: 1, ToID: 2, Content: "hi"},
		{FromID: 2, ToID: 1, Content: "hello"},
	} {
		if _, err := svc.Send(ctx, req); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	convs, err := svc.Conversations(ctx, 2)
	if err != nil {
		t.Fatalf("Conversations failed: %v", err)
	}
	alice, ok := convs[1]
	if !ok {
		t.Fatalf("expected a conversation with alice, got %v", convs)
	}
	if alice.Username != "alice" || len(alice.Messages) != 2 || alice.LastMessage != "hello" || alice.UnseenMessages != 1 {
		t.Fatalf("unexpected conversation: %+v", alice)
	}
}

func TestServiceConcurrentSendsQueueInIDOrder(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	const n = 30
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := svc.Send(ctx, SendRequest{FromID: 1, ToID: 2, Content: "msg"}); err != nil {
				t.Errorf("Send %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	pending := svc.Hub().Queue().DrainFor(2)
	if len(pending) != n {
		t.Fatalf("expected %d pending messages, got %d", n, len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i].ID <= pending[i-1].ID || !pending[i].Date.After(pending[i-1].Date) {
			t.Fatalf("queue out of order at %d: %+v then %+v", i, pending[i-1], pending[i])
		}
	}
}
