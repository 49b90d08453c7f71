// Package memory implements repository.Store on in-process maps. It backs the
// service tests and gives WithinTx real rollback semantics by mutating a clone
// of the dataset and swapping it in only on success.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vkoval/agora/internal/domain"
	"github.com/vkoval/agora/internal/repository"
)

type prefKey struct {
	userID    uuid.UUID
	channelID uuid.UUID
	topic     string
}

type dataset struct {
	users       map[uuid.UUID]domain.User
	mutes       map[uuid.UUID]map[uuid.UUID]time.Time
	channels    map[uuid.UUID]domain.Channel
	memberships map[uuid.UUID]map[uuid.UUID]domain.Membership
	messages    map[int64]domain.Message
	nextID      int64
	deliveries  map[uuid.UUID]map[int64]domain.MessageFlag
	prefs       map[prefKey]domain.TopicPreference
	reactions   map[int64][]domain.Reaction
}

func newDataset() *dataset {
	return &dataset{
		users:       make(map[uuid.UUID]domain.User),
		mutes:       make(map[uuid.UUID]map[uuid.UUID]time.Time),
		channels:    make(map[uuid.UUID]domain.Channel),
		memberships: make(map[uuid.UUID]map[uuid.UUID]domain.Membership),
		messages:    make(map[int64]domain.Message),
		nextID:      1,
		deliveries:  make(map[uuid.UUID]map[int64]domain.MessageFlag),
		prefs:       make(map[prefKey]domain.TopicPreference),
		reactions:   make(map[int64][]domain.Reaction),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	c.nextID = d.nextID
	for id, u := range d.users {
		c.users[id] = u
	}
	for muter, muted := range d.mutes {
		inner := make(map[uuid.UUID]time.Time, len(muted))
		for id, at := range muted {
			inner[id] = at
		}
		c.mutes[muter] = inner
	}
	for id, ch := range d.channels {
		c.channels[id] = ch
	}
	for chID, members := range d.memberships {
		inner := make(map[uuid.UUID]domain.Membership, len(members))
		for id, m := range members {
			inner[id] = m
		}
		c.memberships[chID] = inner
	}
	for id, msg := range d.messages {
		msg.EditHistory = append([]domain.EditHistoryEntry(nil), msg.EditHistory...)
		c.messages[id] = msg
	}
	for userID, recs := range d.deliveries {
		inner := make(map[int64]domain.MessageFlag, len(recs))
		for id, flags := range recs {
			inner[id] = flags
		}
		c.deliveries[userID] = inner
	}
	for k, pref := range d.prefs {
		c.prefs[k] = pref
	}
	for id, rs := range d.reactions {
		c.reactions[id] = append([]domain.Reaction(nil), rs...)
	}
	return c
}

// handle abstracts where a repository reads its data from: the store itself
// (locking per call) or a transaction's working clone (lock already held).
type handle interface {
	data() *dataset
	lock()
	unlock()
}

type Store struct {
	mu sync.Mutex
	d  *dataset
}

func NewStore() *Store {
	return &Store{d: newDataset()}
}

func (s *Store) data() *dataset { return s.d }
func (s *Store) lock()          { s.mu.Lock() }
func (s *Store) unlock()        { s.mu.Unlock() }

func (s *Store) Users() repository.UserRepository                       { return &userRepo{s} }
func (s *Store) Channels() repository.ChannelRepository                 { return &channelRepo{s} }
func (s *Store) Memberships() repository.MembershipRepository           { return &membershipRepo{s} }
func (s *Store) Messages() repository.MessageRepository                 { return &messageRepo{s} }
func (s *Store) Deliveries() repository.DeliveryRepository              { return &deliveryRepo{s} }
func (s *Store) TopicPreferences() repository.TopicPreferenceRepository { return &topicPrefRepo{s} }
func (s *Store) Reactions() repository.ReactionRepository               { return &reactionRepo{s} }

// WithinTx runs fn against a deep copy of the dataset and publishes the copy
// only when fn succeeds, so a failed operation leaves no partial writes.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.d.clone()
	if err := fn(ctx, &txHandle{d: working}); err != nil {
		return err
	}
	s.d = working
	return nil
}

type txHandle struct {
	d *dataset
}

func (t *txHandle) data() *dataset { return t.d }
func (t *txHandle) lock()          {}
func (t *txHandle) unlock()        {}

func (t *txHandle) Users() repository.UserRepository                       { return &userRepo{t} }
func (t *txHandle) Channels() repository.ChannelRepository                 { return &channelRepo{t} }
func (t *txHandle) Memberships() repository.MembershipRepository           { return &membershipRepo{t} }
func (t *txHandle) Messages() repository.MessageRepository                 { return &messageRepo{t} }
func (t *txHandle) Deliveries() repository.DeliveryRepository              { return &deliveryRepo{t} }
func (t *txHandle) TopicPreferences() repository.TopicPreferenceRepository { return &topicPrefRepo{t} }
func (t *txHandle) Reactions() repository.ReactionRepository               { return &reactionRepo{t} }
