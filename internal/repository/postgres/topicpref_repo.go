package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vkoval/agora/internal/domain"
)

type TopicPreferenceRepo struct {
	db Querier
}

func (r *TopicPreferenceRepo) Get(ctx context.Context, userID, channelID uuid.UUID, topic string) (*domain.TopicPreference, error) {
	var pref domain.TopicPreference
	err := r.db.QueryRow(ctx, `
		SELECT user_id, channel_id, topic, policy, updated_at FROM topic_preferences
		WHERE user_id = $1 AND channel_id = $2 AND topic = $3`,
		userID, channelID, topic,
	).Scan(&pref.UserID, &pref.ChannelID, &pref.Topic, &pref.Policy, &pref.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pref, nil
}

func (r *TopicPreferenceRepo) ListForTopic(ctx context.Context, channelID uuid.UUID, topic string) ([]domain.TopicPreference, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, channel_id, topic, policy, updated_at FROM topic_preferences
		WHERE channel_id = $1 AND topic = $2`,
		channelID, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []domain.TopicPreference
	for rows.Next() {
		var pref domain.TopicPreference
		if err := rows.Scan(&pref.UserID, &pref.ChannelID, &pref.Topic, &pref.Policy, &pref.UpdatedAt); err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}

func (r *TopicPreferenceRepo) Set(ctx context.Context, pref *domain.TopicPreference) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO topic_preferences (user_id, channel_id, topic, policy, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, channel_id, topic)
		DO UPDATE SET policy = EXCLUDED.policy, updated_at = EXCLUDED.updated_at`,
		pref.UserID, pref.ChannelID, pref.Topic, pref.Policy, pref.UpdatedAt)
	return err
}

func (r *TopicPreferenceRepo) Delete(ctx context.Context, userID, channelID uuid.UUID, topic string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM topic_preferences
		WHERE user_id = $1 AND channel_id = $2 AND topic = $3`,
		userID, channelID, topic)
	return err
}
