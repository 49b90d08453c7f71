// Package event defines the fan-out events the core publishes. Each event is
// built exactly once per operation, carries its recipient list explicitly,
// and is immutable after construction.
package event

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeMessage            Type = "message"
	TypeUpdateMessage      Type = "update_message"
	TypeDeleteMessage      Type = "delete_message"
	TypeUpdateMessageFlags Type = "update_message_flags"
	TypeReaction           Type = "reaction"
)

// Event is the envelope published to the distribution transport. Recipients
// is the explicit user-id list attached to the publish call; the transport
// never derives it.
type Event struct {
	Type       Type            `json:"type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  int64           `json:"ts"`
	Recipients []uuid.UUID     `json:"-"`
}

func newEvent(t Type, recipients []uuid.UUID, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:       t,
		Payload:    data,
		Timestamp:  time.Now().Unix(),
		Recipients: recipients,
	}, nil
}

// WireMessage is the wide message body shared by message events.
type WireMessage struct {
	ID              int64       `json:"id"`
	SenderID        uuid.UUID   `json:"sender_id"`
	RecipientType   string      `json:"recipient_type"`
	ChannelID       uuid.UUID   `json:"channel_id,omitempty"`
	DirectUserIDs   []uuid.UUID `json:"direct_user_ids,omitempty"`
	Topic           string      `json:"topic,omitempty"`
	Content         string      `json:"content"`
	RenderedContent string      `json:"rendered_content"`
	SentAt          time.Time   `json:"sent_at"`
}

// MessagePayload fans out one freshly sent message. FlagsByUser covers every
// user who got a delivery record; the eligibility sets let notification
// workers decide push/email delivery without re-resolving the audience.
type MessagePayload struct {
	Message            WireMessage            `json:"message"`
	FlagsByUser        map[uuid.UUID][]string `json:"flags_by_user"`
	PushEligibleIDs    []uuid.UUID            `json:"push_eligible_ids,omitempty"`
	EmailEligibleIDs   []uuid.UUID            `json:"email_eligible_ids,omitempty"`
	StreamWildcardIDs  []uuid.UUID            `json:"stream_wildcard_ids,omitempty"`
	TopicWildcardIDs   []uuid.UUID            `json:"topic_wildcard_ids,omitempty"`
	MutedSenderUserIDs []uuid.UUID            `json:"muted_sender_user_ids,omitempty"`
}

func NewMessage(recipients []uuid.UUID, payload MessagePayload) (*Event, error) {
	return newEvent(TypeMessage, recipients, payload)
}

// UpdateMessagePayload covers content edits, topic renames and channel moves.
type UpdateMessagePayload struct {
	MessageID       int64      `json:"message_id"`
	MessageIDs      []int64    `json:"message_ids"`
	UserID          uuid.UUID  `json:"user_id"`
	PropagateMode   string     `json:"propagate_mode,omitempty"`
	OrigTopic       *string    `json:"orig_topic,omitempty"`
	NewTopic        *string    `json:"new_topic,omitempty"`
	OrigChannelID   *uuid.UUID `json:"orig_channel_id,omitempty"`
	NewChannelID    *uuid.UUID `json:"new_channel_id,omitempty"`
	Content         *string    `json:"content,omitempty"`
	RenderedContent *string    `json:"rendered_content,omitempty"`
	EditTimestamp   time.Time  `json:"edit_timestamp"`
}

func NewUpdateMessage(recipients []uuid.UUID, payload UpdateMessagePayload) (*Event, error) {
	return newEvent(TypeUpdateMessage, recipients, payload)
}

// DeleteMessagePayload is the synthetic "message removed" event sent to users
// who lose access through a channel move.
type DeleteMessagePayload struct {
	MessageIDs []int64   `json:"message_ids"`
	ChannelID  uuid.UUID `json:"channel_id"`
	Topic      string    `json:"topic"`
}

func NewDeleteMessage(recipients []uuid.UUID, payload DeleteMessagePayload) (*Event, error) {
	return newEvent(TypeDeleteMessage, recipients, payload)
}

type FlagsPayload struct {
	UserID     uuid.UUID `json:"user_id"`
	Flag       string    `json:"flag"`
	Op         string    `json:"op"` // "add" | "remove"
	MessageIDs []int64   `json:"message_ids"`
	Count      int       `json:"count"`
}

func NewUpdateMessageFlags(recipients []uuid.UUID, payload FlagsPayload) (*Event, error) {
	return newEvent(TypeUpdateMessageFlags, recipients, payload)
}

type ReactionPayload struct {
	MessageID int64     `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
	Op        string    `json:"op"` // "add" | "remove"
}

func NewReaction(recipients []uuid.UUID, payload ReactionPayload) (*Event, error) {
	return newEvent(TypeReaction, recipients, payload)
}
