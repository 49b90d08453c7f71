package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vkoval/agora/internal/domain"
)

type ChannelRepo struct {
	db Querier
}

func (r *ChannelRepo) Create(ctx context.Context, channel *domain.Channel) error {
	query := `
		INSERT INTO channels (id, name, description, invite_only, web_public,
			history_public_to_subscribers, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.Exec(ctx, query,
		channel.ID, channel.Name, channel.Description, channel.InviteOnly,
		channel.WebPublic, channel.HistoryPublicToSubscribers, channel.CreatedBy, channel.CreatedAt,
	)
	return err
}

func (r *ChannelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	query := `
		SELECT id, name, description, invite_only, web_public,
			history_public_to_subscribers, created_by, created_at, archived_at
		FROM channels
		WHERE id = $1`

	var ch domain.Channel
	err := r.db.QueryRow(ctx, query, id).Scan(
		&ch.ID, &ch.Name, &ch.Description, &ch.InviteOnly, &ch.WebPublic,
		&ch.HistoryPublicToSubscribers, &ch.CreatedBy, &ch.CreatedAt, &ch.ArchivedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}
