package model

import (
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

type MessageID string

// Message is one chat line of a match. The log of a match is append-only.
type Message struct {
	ID        MessageID `json:"id"`
	MatchID   MatchID   `json:"match_id"`
	SenderID  AgentID   `json:"sender_id"`
	Text      string    `json:"message_text"`
	ReadAt    Timestamp `json:"read_at,omitzero"`
	CreatedAt Timestamp `json:"created_at"`
}

// Unread reports whether the message is still unread
func (m *Message) Unread() bool {
	return m.ReadAt.IsZero()
}

// NormalizeMessageText trims the text and rejects it when nothing is left
func NormalizeMessageText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", goerr.Wrap(ErrValidation, "message text is empty")
	}
	if len([]rune(trimmed)) > 5000 {
		return "", goerr.Wrap(ErrValidation, "message text must be at most 5000 characters")
	}
	return trimmed, nil
}

// SortMessages orders messages by creation time, ties broken by ID
func SortMessages(msgs []*Message) {
	slices.SortStableFunc(msgs, func(a, b *Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt.Time); c != 0 {
			return c
		}
		return strings.Compare(string(a.ID), string(b.ID))
	})
}
