package postgres

import (
	"context"

	"github.com/google/uuid"

	"github.com/vkoval/agora/internal/domain"
)

type ReactionRepo struct {
	db Querier
}

func (r *ReactionRepo) Add(ctx context.Context, reaction *domain.Reaction) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO reactions (message_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (message_id, user_id, emoji) DO NOTHING`,
		reaction.MessageID, reaction.UserID, reaction.Emoji, reaction.CreatedAt)
	return err
}

func (r *ReactionRepo) Remove(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM reactions
		WHERE message_id = $1 AND user_id = $2 AND emoji = $3`,
		messageID, userID, emoji)
	return err
}

func (r *ReactionRepo) ListForMessage(ctx context.Context, messageID int64) ([]domain.Reaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT message_id, user_id, emoji, created_at FROM reactions
		WHERE message_id = $1
		ORDER BY created_at`,
		messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reactions []domain.Reaction
	for rows.Next() {
		var reaction domain.Reaction
		if err := rows.Scan(&reaction.MessageID, &reaction.UserID, &reaction.Emoji, &reaction.CreatedAt); err != nil {
			return nil, err
		}
		reactions = append(reactions, reaction)
	}
	return reactions, rows.Err()
}
