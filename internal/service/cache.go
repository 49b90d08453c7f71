package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/vkoval/agora/internal/domain"
	"github.com/vkoval/agora/internal/repository"
)

// RequestCache memoizes the reads an operation repeats (subscriber lists,
// user rows, topic participants). One cache is created per logical operation
// and discarded with it; nothing here outlives the request.
type RequestCache struct {
	channels          map[uuid.UUID]*domain.Channel
	memberships       map[uuid.UUID][]domain.Membership
	users             map[uuid.UUID]*domain.User
	topicParticipants map[topicKey][]uuid.UUID
	mutersOf          map[uuid.UUID][]uuid.UUID
	topicPrefs        map[topicKey][]domain.TopicPreference
}

type topicKey struct {
	channelID uuid.UUID
	topic     string
}

func NewRequestCache() *RequestCache {
	return &RequestCache{
		channels:          make(map[uuid.UUID]*domain.Channel),
		memberships:       make(map[uuid.UUID][]domain.Membership),
		users:             make(map[uuid.UUID]*domain.User),
		topicParticipants: make(map[topicKey][]uuid.UUID),
		mutersOf:          make(map[uuid.UUID][]uuid.UUID),
		topicPrefs:        make(map[topicKey][]domain.TopicPreference),
	}
}

func (c *RequestCache) Channel(ctx context.Context, tx repository.Tx, id uuid.UUID) (*domain.Channel, error) {
	if ch, ok := c.channels[id]; ok {
		return ch, nil
	}
	ch, err := tx.Channels().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.channels[id] = ch
	return ch, nil
}

func (c *RequestCache) Memberships(ctx context.Context, tx repository.Tx, channelID uuid.UUID) ([]domain.Membership, error) {
	if ms, ok := c.memberships[channelID]; ok {
		return ms, nil
	}
	ms, err := tx.Memberships().ListByChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	c.memberships[channelID] = ms
	return ms, nil
}

// Users loads the given users, fetching only the ids not already cached.
func (c *RequestCache) Users(ctx context.Context, tx repository.Tx, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	out := make(map[uuid.UUID]*domain.User, len(ids))
	var missing []uuid.UUID
	for _, id := range ids {
		if u, ok := c.users[id]; ok {
			out[id] = u
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		fetched, err := tx.Users().GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for id, u := range fetched {
			c.users[id] = u
			out[id] = u
		}
	}
	return out, nil
}

func (c *RequestCache) TopicParticipants(ctx context.Context, tx repository.Tx, channelID uuid.UUID, topic string) ([]uuid.UUID, error) {
	key := topicKey{channelID, topic}
	if ids, ok := c.topicParticipants[key]; ok {
		return ids, nil
	}
	ids, err := tx.Messages().TopicParticipants(ctx, channelID, topic)
	if err != nil {
		return nil, err
	}
	c.topicParticipants[key] = ids
	return ids, nil
}

func (c *RequestCache) MutersOf(ctx context.Context, tx repository.Tx, userID uuid.UUID) ([]uuid.UUID, error) {
	if ids, ok := c.mutersOf[userID]; ok {
		return ids, nil
	}
	ids, err := tx.Users().MutersOf(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.mutersOf[userID] = ids
	return ids, nil
}

func (c *RequestCache) TopicPreferences(ctx context.Context, tx repository.Tx, channelID uuid.UUID, topic string) ([]domain.TopicPreference, error) {
	key := topicKey{channelID, topic}
	if prefs, ok := c.topicPrefs[key]; ok {
		return prefs, nil
	}
	prefs, err := tx.TopicPreferences().ListForTopic(ctx, channelID, topic)
	if err != nil {
		return nil, err
	}
	c.topicPrefs[key] = prefs
	return prefs, nil
}
