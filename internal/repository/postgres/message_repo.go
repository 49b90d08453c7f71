package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vkoval/agora/internal/domain"
)

const messageColumns = `id, sender_id, recipient_type, channel_id, direct_user_ids,
	topic, content, rendered_content, sent_at, last_edited_at, edit_history`

type MessageRepo struct {
	db Querier
}

func (r *MessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	query := `
		INSERT INTO messages (sender_id, recipient_type, channel_id, direct_user_ids,
			topic, content, rendered_content, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var channelID *uuid.UUID
	if msg.Recipient.IsChannel() {
		channelID = &msg.Recipient.ChannelID
	}
	return r.db.QueryRow(ctx, query,
		msg.SenderID, msg.Recipient.Type, channelID, msg.Recipient.UserIDs,
		msg.Topic, msg.Content, msg.RenderedContent, msg.SentAt,
	).Scan(&msg.ID)
}

func (r *MessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	msg, err := scanMessage(r.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *MessageRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Message, error) {
	rows, err := r.db.Query(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]*domain.Message, len(ids))
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out[msg.ID] = msg
	}
	return out, rows.Err()
}

func (r *MessageRepo) IDsInTopic(ctx context.Context, channelID uuid.UUID, topic string, fromID int64) ([]int64, error) {
	query := `
		SELECT id FROM messages
		WHERE channel_id = $1 AND topic = $2 AND id >= $3
		ORDER BY id`
	rows, err := r.db.Query(ctx, query, channelID, topic, fromID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *MessageRepo) TopicHasMessages(ctx context.Context, channelID uuid.UUID, topic string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE channel_id = $1 AND topic = $2)`,
		channelID, topic,
	).Scan(&exists)
	return exists, err
}

// TopicParticipants is senders union reactors over the topic's history; it
// is the most expensive read in the pipeline and is only run for messages
// that might contain a topic wildcard.
func (r *MessageRepo) TopicParticipants(ctx context.Context, channelID uuid.UUID, topic string) ([]uuid.UUID, error) {
	query := `
		SELECT sender_id FROM messages WHERE channel_id = $1 AND topic = $2
		UNION
		SELECT rx.user_id
		FROM reactions rx
		JOIN messages m ON m.id = rx.message_id
		WHERE m.channel_id = $1 AND m.topic = $2`
	rows, err := r.db.Query(ctx, query, channelID, topic)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUUIDs(rows)
}

func (r *MessageRepo) UpdateContent(ctx context.Context, id int64, content, rendered string, editedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET content = $2, rendered_content = $3, last_edited_at = $4
		WHERE id = $1`, id, content, rendered, editedAt)
	return err
}

func (r *MessageRepo) Retarget(ctx context.Context, ids []int64, channelID uuid.UUID, topic string, editedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET channel_id = $2, topic = $3, last_edited_at = $4
		WHERE id = ANY($1)`, ids, channelID, topic, editedAt)
	return err
}

func (r *MessageRepo) AppendEditHistory(ctx context.Context, ids []int64, entry domain.EditHistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal edit history entry: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		UPDATE messages
		SET edit_history = edit_history || $2::jsonb
		WHERE id = ANY($1)`, ids, data)
	return err
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	var (
		msg       domain.Message
		channelID *uuid.UUID
		userIDs   []uuid.UUID
		history   []byte
	)
	err := row.Scan(
		&msg.ID, &msg.SenderID, &msg.Recipient.Type, &channelID, &userIDs,
		&msg.Topic, &msg.Content, &msg.RenderedContent, &msg.SentAt,
		&msg.LastEditedAt, &history,
	)
	if err != nil {
		return nil, err
	}
	if channelID != nil {
		msg.Recipient.ChannelID = *channelID
	}
	msg.Recipient.UserIDs = userIDs
	if len(history) > 0 {
		if err := json.Unmarshal(history, &msg.EditHistory); err != nil {
			return nil, fmt.Errorf("unmarshal edit history: %w", err)
		}
	}
	return &msg, nil
}
