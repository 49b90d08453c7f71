package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vkoval/agora/internal/domain"
)

const membershipColumns = `channel_id, user_id, active, muted, push_override,
	email_override, wildcard_override, joined_at`

type MembershipRepo struct {
	db Querier
}

func (r *MembershipRepo) Upsert(ctx context.Context, member *domain.Membership) error {
	query := `
		INSERT INTO memberships (channel_id, user_id, active, muted, push_override,
			email_override, wildcard_override, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (channel_id, user_id) DO UPDATE SET
			active = EXCLUDED.active,
			muted = EXCLUDED.muted,
			push_override = EXCLUDED.push_override,
			email_override = EXCLUDED.email_override,
			wildcard_override = EXCLUDED.wildcard_override`

	_, err := r.db.Exec(ctx, query,
		member.ChannelID, member.UserID, member.Active, member.Muted,
		member.PushOverride, member.EmailOverride, member.WildcardOverride, member.JoinedAt,
	)
	return err
}

func (r *MembershipRepo) Get(ctx context.Context, channelID, userID uuid.UUID) (*domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE channel_id = $1 AND user_id = $2`
	m, err := scanMembership(r.db.QueryRow(ctx, query, channelID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MembershipRepo) ListByChannel(ctx context.Context, channelID uuid.UUID) ([]domain.Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE channel_id = $1`
	rows, err := r.db.Query(ctx, query, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MembershipRepo) EverSubscribedUserIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM memberships WHERE channel_id = $1`, channelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUUIDs(rows)
}

func (r *MembershipRepo) SubscribedChannelIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT channel_id FROM memberships WHERE user_id = $1 AND active`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUUIDs(rows)
}

func scanMembership(row pgx.Row) (domain.Membership, error) {
	var m domain.Membership
	err := row.Scan(
		&m.ChannelID, &m.UserID, &m.Active, &m.Muted, &m.PushOverride,
		&m.EmailOverride, &m.WildcardOverride, &m.JoinedAt,
	)
	return m, err
}

func scanUUIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
