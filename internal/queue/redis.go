// Package queue feeds the push and email notification workers through Redis
// lists. The core only enqueues; delivery workers consume out of process.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	pushList      = "notify:push"
	emailList     = "notify:email"
	clearPushList = "notify:push_clear"
)

// NotificationJob is one unit of work for a delivery worker.
type NotificationJob struct {
	UserID     uuid.UUID `json:"user_id"`
	MessageID  int64     `json:"message_id,omitempty"`
	MessageIDs []int64   `json:"message_ids,omitempty"`
	Trigger    string    `json:"trigger,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// RedisQueue implements the notification queue over Redis lists.
type RedisQueue struct {
	client *redis.Client
}

func NewRedisQueue(redisURL string) (*RedisQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisQueue{client: client}, nil
}

func NewRedisQueueWithClient(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func (q *RedisQueue) EnqueuePush(ctx context.Context, userID uuid.UUID, messageID int64, trigger string) error {
	return q.push(ctx, pushList, NotificationJob{
		UserID:     userID,
		MessageID:  messageID,
		Trigger:    trigger,
		EnqueuedAt: time.Now(),
	})
}

func (q *RedisQueue) EnqueueEmail(ctx context.Context, userID uuid.UUID, messageID int64, trigger string) error {
	return q.push(ctx, emailList, NotificationJob{
		UserID:     userID,
		MessageID:  messageID,
		Trigger:    trigger,
		EnqueuedAt: time.Now(),
	})
}

// ClearPush tells the push worker to retract notifications the user no longer
// needs, after the messages were read or their mention was edited away.
func (q *RedisQueue) ClearPush(ctx context.Context, userID uuid.UUID, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	return q.push(ctx, clearPushList, NotificationJob{
		UserID:     userID,
		MessageIDs: messageIDs,
		EnqueuedAt: time.Now(),
	})
}

func (q *RedisQueue) push(ctx context.Context, list string, job NotificationJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal notification job: %w", err)
	}
	if err := q.client.LPush(ctx, list, data).Err(); err != nil {
		return fmt.Errorf("enqueue %s: %w", list, err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
