package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/vkoval/agora/internal/domain"
	"github.com/vkoval/agora/internal/repository"
)

// hasHistoryAccess decides whether a user may see a message they hold no
// delivery record for. Direct messages belong to their parties; channel
// messages follow the channel's privacy class.
func hasHistoryAccess(ctx context.Context, tx repository.Tx, cache *RequestCache, user *domain.User, msg *domain.Message) (bool, error) {
	if !msg.Recipient.IsChannel() {
		for _, id := range msg.Recipient.UserIDs {
			if id == user.ID {
				return true, nil
			}
		}
		return false, nil
	}

	channel, err := cache.Channel(ctx, tx, msg.Recipient.ChannelID)
	if err != nil {
		return false, err
	}
	if channel == nil {
		return false, nil
	}
	subscribed, err := isActivelySubscribed(ctx, tx, cache, channel.ID, user.ID)
	if err != nil {
		return false, err
	}
	return channel.HistoryVisibleTo(user, subscribed), nil
}

// canAccessMessage additionally honors an existing delivery record, which
// grants access even where history does not (protected-history channels).
func canAccessMessage(ctx context.Context, tx repository.Tx, cache *RequestCache, user *domain.User, msg *domain.Message) (bool, error) {
	ok, err := hasHistoryAccess(ctx, tx, cache, user, msg)
	if err != nil || ok {
		return ok, err
	}
	rec, err := tx.Deliveries().Get(ctx, user.ID, msg.ID)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

func isActivelySubscribed(ctx context.Context, tx repository.Tx, cache *RequestCache, channelID, userID uuid.UUID) (bool, error) {
	memberships, err := cache.Memberships(ctx, tx, channelID)
	if err != nil {
		return false, err
	}
	for _, m := range memberships {
		if m.UserID == userID {
			return m.Active, nil
		}
	}
	return false, nil
}
