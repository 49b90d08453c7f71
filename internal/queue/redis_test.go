package queue

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisQueueWithClient(client), mr
}

func TestEnqueuePush(t *testing.T) {
	q, mr := newTestQueue(t)
	userID := uuid.New()

	require.NoError(t, q.EnqueuePush(context.Background(), userID, 42, "mentioned"))

	raw, err := mr.Lpop("notify:push")
	require.NoError(t, err)

	var job NotificationJob
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, userID, job.UserID)
	assert.Equal(t, int64(42), job.MessageID)
	assert.Equal(t, "mentioned", job.Trigger)
	assert.False(t, job.EnqueuedAt.IsZero())
}

func TestEnqueueEmail(t *testing.T) {
	q, mr := newTestQueue(t)
	userID := uuid.New()

	require.NoError(t, q.EnqueueEmail(context.Background(), userID, 7, "direct_message"))

	raw, err := mr.Lpop("notify:email")
	require.NoError(t, err)

	var job NotificationJob
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, userID, job.UserID)
	assert.Equal(t, "direct_message", job.Trigger)
}

func TestClearPush(t *testing.T) {
	q, mr := newTestQueue(t)
	userID := uuid.New()

	// No ids means nothing to retract.
	require.NoError(t, q.ClearPush(context.Background(), userID, nil))
	assert.False(t, mr.Exists("notify:push_clear"))

	require.NoError(t, q.ClearPush(context.Background(), userID, []int64{1, 2, 3}))
	raw, err := mr.Lpop("notify:push_clear")
	require.NoError(t, err)

	var job NotificationJob
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Equal(t, []int64{1, 2, 3}, job.MessageIDs)
	assert.Empty(t, job.Trigger)
}

func TestNewRedisQueue_BadURL(t *testing.T) {
	_, err := NewRedisQueue("not-a-url")
	assert.Error(t, err)
}
