package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecipientType discriminates where a message was addressed.
type RecipientType string

const (
	RecipientChannel RecipientType = "channel"
	RecipientDirect  RecipientType = "direct"
)

// Recipient is the destination of a message: a channel (with a topic held on
// the message itself) or a fixed set of direct-message parties.
type Recipient struct {
	Type      RecipientType `json:"type"`
	ChannelID uuid.UUID     `json:"channel_id,omitempty"`
	UserIDs   []uuid.UUID   `json:"user_ids,omitempty"`
}

func ChannelRecipient(channelID uuid.UUID) Recipient {
	return Recipient{Type: RecipientChannel, ChannelID: channelID}
}

func DirectRecipient(userIDs ...uuid.UUID) Recipient {
	return Recipient{Type: RecipientDirect, UserIDs: userIDs}
}

func (r Recipient) IsChannel() bool {
	return r.Type == RecipientChannel
}

// Message ids are a global int64 sequence; moves and edit deadlines rely on
// id order matching send order within a topic.
type Message struct {
	ID              int64              `json:"id"`
	SenderID        uuid.UUID          `json:"sender_id"`
	Recipient       Recipient          `json:"recipient"`
	Topic           string             `json:"topic,omitempty"`
	Content         string             `json:"content"`
	RenderedContent string             `json:"rendered_content"`
	SentAt          time.Time          `json:"sent_at"`
	LastEditedAt    *time.Time         `json:"last_edited_at,omitempty"`
	EditHistory     []EditHistoryEntry `json:"-"`
}

// EditHistoryEntry records one edit or move applied to a message. Only the
// fields that actually changed are set.
type EditHistoryEntry struct {
	UserID        uuid.UUID  `json:"user_id"`
	Timestamp     time.Time  `json:"timestamp"`
	PrevContent   *string    `json:"prev_content,omitempty"`
	PrevTopic     *string    `json:"prev_topic,omitempty"`
	PrevChannelID *uuid.UUID `json:"prev_channel_id,omitempty"`
}

// PropagateMode scopes a topic move across later messages in the same topic.
type PropagateMode string

const (
	PropagateOne   PropagateMode = "change_one"
	PropagateLater PropagateMode = "change_later"
	PropagateAll   PropagateMode = "change_all"
)

// ParsePropagateMode maps the wire value to a mode; the empty string means
// change_one.
func ParsePropagateMode(s string) (PropagateMode, bool) {
	switch PropagateMode(s) {
	case PropagateOne, PropagateLater, PropagateAll:
		return PropagateMode(s), true
	case "":
		return PropagateOne, true
	}
	return "", false
}
