package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vkoval/agora/internal/domain"
)

const userColumns = `id, email, username, display_name, password_hash, role,
	is_webhook_bot, deactivated, stream_push_default, stream_email_default,
	wildcard_notify_default, created_at, updated_at`

type UserRepo struct {
	db Querier
}

func (r *UserRepo) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, username, display_name, password_hash, role,
			is_webhook_bot, deactivated, stream_push_default, stream_email_default,
			wildcard_notify_default, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		user.ID, user.Email, user.Username, user.DisplayName, user.PasswordHash,
		user.Role, user.IsWebhookBot, user.Deactivated, user.StreamPushDefault,
		user.StreamEmailDefault, user.WildcardNotifyDefault, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.scanUser(ctx, "SELECT "+userColumns+" FROM users WHERE username = $1", username)
}

func (r *UserRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	rows, err := r.db.Query(ctx, "SELECT "+userColumns+" FROM users WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[uuid.UUID]*domain.User, len(ids))
	for rows.Next() {
		user, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		out[user.ID] = user
	}
	return out, rows.Err()
}

func (r *UserRepo) MutersOf(ctx context.Context, mutedID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM muted_users WHERE muted_user_id = $1`, mutedID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (r *UserRepo) Mute(ctx context.Context, userID, mutedID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO muted_users (user_id, muted_user_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id, muted_user_id) DO NOTHING`, userID, mutedID)
	return err
}

func (r *UserRepo) Unmute(ctx context.Context, userID, mutedID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `DELETE FROM muted_users WHERE user_id = $1 AND muted_user_id = $2`, userID, mutedID)
	return err
}

func (r *UserRepo) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	user, err := scanUserRow(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

func scanUserRow(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.DisplayName, &user.PasswordHash,
		&user.Role, &user.IsWebhookBot, &user.Deactivated, &user.StreamPushDefault,
		&user.StreamEmailDefault, &user.WildcardNotifyDefault, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
