package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role gates edit/move permissions and channel history visibility.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
	RoleGuest     Role = "guest"
)

// CanMoveWithoutDeadline reports whether the role bypasses the time budget
// on topic and channel moves.
func (r Role) CanMoveWithoutDeadline() bool {
	return r == RoleAdmin || r == RoleModerator
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	// Webhook bots only react to outgoing webhooks and never read messages,
	// so they are excluded from delivery records.
	IsWebhookBot bool `json:"is_webhook_bot"`
	Deactivated  bool `json:"deactivated"`
	// Account-wide notification defaults, overridable per channel and topic.
	StreamPushDefault     bool      `json:"stream_push_default"`
	StreamEmailDefault    bool      `json:"stream_email_default"`
	WildcardNotifyDefault bool      `json:"wildcard_notify_default"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// MutedUser is one "user A muted user B" row; messages from B are
// auto-marked read for A at send time.
type MutedUser struct {
	UserID      uuid.UUID `json:"user_id"`
	MutedUserID uuid.UUID `json:"muted_user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
