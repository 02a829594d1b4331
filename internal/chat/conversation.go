package chat

import (
	"sort"

	"pollchat/internal/user"
)

// BuildConversations groups a user's received and sent messages by counterpart.
// It is a pure projection; nothing it computes is stored. lookup may return nil
// for counterparts that cannot be resolved.
func BuildConversations(userID int, received, sent []Message, lookup func(id int) *user.User) map[int]*Conversation {
	seen := make(map[int]struct{}, len(received)+len(sent))
	all := make([]Message, 0, len(received)+len(sent))
	for _, batch := range [][]Message{received, sent} {
		for _, m := range batch {
			// messages to oneself show up in both lists
			if _, dup := seen[m.ID]; dup {
				continue
			}
			seen[m.ID] = struct{}{}
			all = append(all, m)
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Date.Equal(all[j].Date) {
			return all[i].ID < all[j].ID
		}
		return all[i].Date.Before(all[j].Date)
	})

	convs := make(map[int]*Conversation)
	for _, m := range all {
		other := m.FromID
		if m.FromID == userID {
			other = m.ToID
		}

		c, ok := convs[other]
		if !ok {
			c = &Conversation{Messages: []Message{}}
			if u := lookup(other); u != nil {
				c.Username = u.Username
				c.ExternalUID = u.ExternalUID
			}
			convs[other] = c
		}

		c.Messages = append(c.Messages, m)
		c.LastMessage = m.Content
		c.LastMessageDate = m.Date
		if m.ToID == userID && !m.Seen {
			c.UnseenMessages++
		}
	}
	return convs
}
