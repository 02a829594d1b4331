package chat

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"pollchat/internal/apperr"
	"pollchat/internal/session"
	"pollchat/internal/user"
)

type Service struct {
	repo     *Repository
	hub      *Hub
	users    Directory
	sessions session.Registry
	log      *slog.Logger
}

func NewService(repo *Repository, hub *Hub, users Directory, sessions session.Registry, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		hub:      hub,
		users:    users,
		sessions: sessions,
		log:      logger.With("component", "chat"),
	}
}

func (s *Service) Hub() *Hub { return s.hub }

// Send stores the message, then hands it to the hub for delivery. Nothing
// reaches the ledger or the queue unless the store accepted it.
func (s *Service) Send(ctx context.Context, req SendRequest) (*Message, error) {
	if req.FromID <= 0 {
		return nil, apperr.Validation("fromID")
	}
	if req.ToID <= 0 {
		return nil, apperr.Validation("toID")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperr.Validation("content")
	}

	m, err := s.repo.CreateMessage(ctx, req.FromID, req.ToID, req.Content, s.hub.Publish)
	if err != nil {
		return nil, err
	}
	s.log.Debug("message accepted", "message_id", m.ID, "from_id", m.FromID, "to_id", m.ToID)
	return m, nil
}

func (s *Service) AllMessages(ctx context.Context) ([]Message, error) {
	return s.repo.ListMessages(ctx)
}

func (s *Service) ReceivedMessages(ctx context.Context, userID int) ([]Message, error) {
	return s.repo.ListReceivedMessages(ctx, userID)
}

// RecentMessages answers from the ledger: messages received by a logged-in
// user since the process started.
func (s *Service) RecentMessages(ctx context.Context, userID int) ([]Message, error) {
	if _, err := s.sessions.Find(ctx, userID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrUnknownUser
		}
		return nil, err
	}
	msgs := slices.Collect(s.hub.Ledger().ReceivedBy(userID))
	if msgs == nil {
		msgs = []Message{}
	}
	return msgs, nil
}

func (s *Service) Conversations(ctx context.Context, userID int) (map[int]*Conversation, error) {
	received, err := s.repo.ListReceivedMessages(ctx, userID)
	if err != nil {
		return nil, err
	}
	sent, err := s.repo.ListSentMessages(ctx, userID)
	if err != nil {
		return nil, err
	}

	lookup := func(id int) *user.User {
		u, err := s.users.FindUser(ctx, id)
		if err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				s.log.Warn("counterpart lookup failed", "user_id", id, "err", err)
			}
			return nil
		}
		return u
	}
	return BuildConversations(userID, received, sent, lookup), nil
}
