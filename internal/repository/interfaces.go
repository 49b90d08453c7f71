package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vkoval/agora/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	// MutersOf returns the ids of users who have muted the given user.
	MutersOf(ctx context.Context, mutedID uuid.UUID) ([]uuid.UUID, error)
	Mute(ctx context.Context, userID, mutedID uuid.UUID) error
	Unmute(ctx context.Context, userID, mutedID uuid.UUID) error
}

type ChannelRepository interface {
	Create(ctx context.Context, channel *domain.Channel) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error)
}

type MembershipRepository interface {
	Upsert(ctx context.Context, member *domain.Membership) error
	Get(ctx context.Context, channelID, userID uuid.UUID) (*domain.Membership, error)
	// ListByChannel returns every membership row for a channel, active or
	// not, in one read; callers filter in memory.
	ListByChannel(ctx context.Context, channelID uuid.UUID) ([]domain.Membership, error)
	// EverSubscribedUserIDs includes users whose subscription is no longer
	// active; moves use it to find everyone who may hold old records.
	EverSubscribedUserIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error)
	SubscribedChannelIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type MessageRepository interface {
	// Create assigns the message its sequence id.
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id int64) (*domain.Message, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Message, error)
	// IDsInTopic returns message ids in (channel, topic) at or after fromID,
	// ascending. fromID <= 0 means the whole topic.
	IDsInTopic(ctx context.Context, channelID uuid.UUID, topic string, fromID int64) ([]int64, error)
	TopicHasMessages(ctx context.Context, channelID uuid.UUID, topic string) (bool, error)
	// TopicParticipants is senders union reactors over the topic's history.
	TopicParticipants(ctx context.Context, channelID uuid.UUID, topic string) ([]uuid.UUID, error)
	UpdateContent(ctx context.Context, id int64, content, rendered string, editedAt time.Time) error
	// Retarget rewrites channel and topic for a set of messages in one
	// statement.
	Retarget(ctx context.Context, ids []int64, channelID uuid.UUID, topic string, editedAt time.Time) error
	AppendEditHistory(ctx context.Context, ids []int64, entry domain.EditHistoryEntry) error
}

type DeliveryRepository interface {
	Get(ctx context.Context, userID uuid.UUID, messageID int64) (*domain.DeliveryRecord, error)
	// GetForUpdate reads and row-locks the user's records for the given ids.
	GetForUpdate(ctx context.Context, userID uuid.UUID, messageIDs []int64) ([]domain.DeliveryRecord, error)
	// ListForMessages reads and row-locks every record on the given messages.
	ListForMessages(ctx context.Context, messageIDs []int64) ([]domain.DeliveryRecord, error)
	UsersWithRecords(ctx context.Context, messageIDs []int64) ([]uuid.UUID, error)
	// BulkCreate ignores rows that already exist.
	BulkCreate(ctx context.Context, records []domain.DeliveryRecord) error
	AddFlag(ctx context.Context, userID uuid.UUID, messageIDs []int64, flag domain.MessageFlag) error
	RemoveFlag(ctx context.Context, userID uuid.UUID, messageIDs []int64, flag domain.MessageFlag) error
	SetFlags(ctx context.Context, userID uuid.UUID, messageID int64, flags domain.MessageFlag) error
	DeleteForUsers(ctx context.Context, userIDs []uuid.UUID, messageIDs []int64) error
	// LockUnreadBatch locks up to limit unread records for the user,
	// skipping rows locked by concurrent callers.
	LockUnreadBatch(ctx context.Context, userID uuid.UUID, limit int) ([]domain.DeliveryRecord, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int64, error)
}

type TopicPreferenceRepository interface {
	Get(ctx context.Context, userID, channelID uuid.UUID, topic string) (*domain.TopicPreference, error)
	ListForTopic(ctx context.Context, channelID uuid.UUID, topic string) ([]domain.TopicPreference, error)
	Set(ctx context.Context, pref *domain.TopicPreference) error
	Delete(ctx context.Context, userID, channelID uuid.UUID, topic string) error
}

type ReactionRepository interface {
	Add(ctx context.Context, reaction *domain.Reaction) error
	Remove(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) error
	ListForMessage(ctx context.Context, messageID int64) ([]domain.Reaction, error)
}

// Tx groups the repositories bound to one transaction (or to the pool for
// plain reads).
type Tx interface {
	Users() UserRepository
	Channels() ChannelRepository
	Memberships() MembershipRepository
	Messages() MessageRepository
	Deliveries() DeliveryRepository
	TopicPreferences() TopicPreferenceRepository
	Reactions() ReactionRepository
}

// Store is the root handle services hold. Every state-changing operation in
// the core runs inside exactly one WithinTx call; row locks taken through the
// Tx repositories serialize concurrent mutation of the same rows.
type Store interface {
	Tx
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
