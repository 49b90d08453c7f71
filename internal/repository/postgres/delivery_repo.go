package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vkoval/agora/internal/domain"
)

type DeliveryRepo struct {
	db Querier
}

func (r *DeliveryRepo) Get(ctx context.Context, userID uuid.UUID, messageID int64) (*domain.DeliveryRecord, error) {
	var rec domain.DeliveryRecord
	err := r.db.QueryRow(ctx,
		`SELECT user_id, message_id, flags FROM delivery_records WHERE user_id = $1 AND message_id = $2`,
		userID, messageID,
	).Scan(&rec.UserID, &rec.MessageID, &rec.Flags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *DeliveryRepo) GetForUpdate(ctx context.Context, userID uuid.UUID, messageIDs []int64) ([]domain.DeliveryRecord, error) {
	query := `
		SELECT user_id, message_id, flags FROM delivery_records
		WHERE user_id = $1 AND message_id = ANY($2)
		ORDER BY message_id
		FOR UPDATE`
	rows, err := r.db.Query(ctx, query, userID, messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *DeliveryRepo) ListForMessages(ctx context.Context, messageIDs []int64) ([]domain.DeliveryRecord, error) {
	query := `
		SELECT user_id, message_id, flags FROM delivery_records
		WHERE message_id = ANY($1)
		ORDER BY message_id, user_id
		FOR UPDATE`
	rows, err := r.db.Query(ctx, query, messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *DeliveryRepo) UsersWithRecords(ctx context.Context, messageIDs []int64) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx,
		`SELECT DISTINCT user_id FROM delivery_records WHERE message_id = ANY($1)`, messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUUIDs(rows)
}

func (r *DeliveryRepo) BulkCreate(ctx context.Context, records []domain.DeliveryRecord) error {
	userIDs := make([]uuid.UUID, len(records))
	messageIDs := make([]int64, len(records))
	flags := make([]int32, len(records))
	for i, rec := range records {
		userIDs[i] = rec.UserID
		messageIDs[i] = rec.MessageID
		flags[i] = int32(rec.Flags)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO delivery_records (user_id, message_id, flags)
		SELECT * FROM unnest($1::uuid[], $2::bigint[], $3::integer[])
		ON CONFLICT (user_id, message_id) DO NOTHING`,
		userIDs, messageIDs, flags)
	return err
}

func (r *DeliveryRepo) AddFlag(ctx context.Context, userID uuid.UUID, messageIDs []int64, flag domain.MessageFlag) error {
	_, err := r.db.Exec(ctx, `
		UPDATE delivery_records SET flags = flags | $3
		WHERE user_id = $1 AND message_id = ANY($2)`,
		userID, messageIDs, int32(flag))
	return err
}

func (r *DeliveryRepo) RemoveFlag(ctx context.Context, userID uuid.UUID, messageIDs []int64, flag domain.MessageFlag) error {
	_, err := r.db.Exec(ctx, `
		UPDATE delivery_records SET flags = flags & ~$3
		WHERE user_id = $1 AND message_id = ANY($2)`,
		userID, messageIDs, int32(flag))
	return err
}

func (r *DeliveryRepo) SetFlags(ctx context.Context, userID uuid.UUID, messageID int64, flags domain.MessageFlag) error {
	_, err := r.db.Exec(ctx, `
		UPDATE delivery_records SET flags = $3
		WHERE user_id = $1 AND message_id = $2`,
		userID, messageID, int32(flags))
	return err
}

func (r *DeliveryRepo) DeleteForUsers(ctx context.Context, userIDs []uuid.UUID, messageIDs []int64) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM delivery_records
		WHERE user_id = ANY($1) AND message_id = ANY($2)`,
		userIDs, messageIDs)
	return err
}

// LockUnreadBatch claims up to limit unread rows, skipping rows a concurrent
// caller already locked, so parallel mark-all-read calls make disjoint
// progress.
func (r *DeliveryRepo) LockUnreadBatch(ctx context.Context, userID uuid.UUID, limit int) ([]domain.DeliveryRecord, error) {
	query := `
		SELECT user_id, message_id, flags FROM delivery_records
		WHERE user_id = $1 AND flags & $2 = 0
		ORDER BY message_id
		LIMIT $3
		FOR UPDATE SKIP LOCKED`
	rows, err := r.db.Query(ctx, query, userID, int32(domain.FlagRead), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func (r *DeliveryRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM delivery_records WHERE user_id = $1 AND flags & $2 = 0`,
		userID, int32(domain.FlagRead),
	).Scan(&count)
	return count, err
}

func scanRecords(rows pgx.Rows) ([]domain.DeliveryRecord, error) {
	var out []domain.DeliveryRecord
	for rows.Next() {
		var rec domain.DeliveryRecord
		if err := rows.Scan(&rec.UserID, &rec.MessageID, &rec.Flags); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
