package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel is a messaging destination. Privacy flags decide who may read
// history and therefore who keeps or loses delivery records across moves.
type Channel struct {
	ID                         uuid.UUID  `json:"id"`
	Name                       string     `json:"name"`
	Description                *string    `json:"description,omitempty"`
	InviteOnly                 bool       `json:"invite_only"`
	WebPublic                  bool       `json:"web_public"`
	HistoryPublicToSubscribers bool       `json:"history_public_to_subscribers"`
	CreatedBy                  uuid.UUID  `json:"created_by"`
	CreatedAt                  time.Time  `json:"created_at"`
	ArchivedAt                 *time.Time `json:"archived_at,omitempty"`
}

// Membership is one user's subscription to a channel. Inactive rows are kept
// so past recipients can be reconstructed after an unsubscribe.
type Membership struct {
	ChannelID uuid.UUID `json:"channel_id"`
	UserID    uuid.UUID `json:"user_id"`
	Active    bool      `json:"active"`
	Muted     bool      `json:"muted"`
	// Per-channel notification overrides; nil falls back to the user default.
	PushOverride     *bool     `json:"push_override,omitempty"`
	EmailOverride    *bool     `json:"email_override,omitempty"`
	WildcardOverride *bool     `json:"wildcard_override,omitempty"`
	JoinedAt         time.Time `json:"joined_at"`
}

// HistoryVisibleTo reports whether a user may read this channel's full
// history, given their role and whether they hold an active subscription.
// Guests only ever see channels they are subscribed to.
func (c *Channel) HistoryVisibleTo(u *User, subscribed bool) bool {
	if c.WebPublic {
		return true
	}
	if c.InviteOnly {
		return subscribed && c.HistoryPublicToSubscribers
	}
	if u.Role == RoleGuest {
		return subscribed
	}
	return true
}
