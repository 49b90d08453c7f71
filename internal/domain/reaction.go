package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reaction is one emoji reaction on a message. Reactors count as topic
// participants for topic-wildcard mentions.
type Reaction struct {
	MessageID int64     `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}
