package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vkoval/agora/internal/domain"
	"github.com/vkoval/agora/internal/event"
)

func TestUpdateFlags_Validation(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)

	_, err := f.flags.UpdateFlags(context.Background(), alice.ID, []int64{1}, "sparkly", true)
	assert.ErrorIs(t, err, ErrUnknownFlag)

	_, err = f.flags.UpdateFlags(context.Background(), alice.ID, []int64{1}, "mentioned", true)
	assert.ErrorIs(t, err, ErrFlagNotEditable)

	_, err = f.flags.UpdateFlags(context.Background(), alice.ID, []int64{999}, "starred", true)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestUpdateFlags_StarIsIdempotent(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	reader := f.user("reader", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	f.subscribe(ch.ID, sender.ID)
	f.subscribe(ch.ID, reader.ID)
	msg := f.send(sender.ID, ch.ID, "x", "hello")

	res, err := f.flags.UpdateFlags(context.Background(), reader.ID, []int64{msg.ID}, "starred", true)
	require.NoError(t, err)
	assert.Equal(t, []int64{msg.ID}, res.MessageIDs)
	assert.True(t, f.record(reader.ID, msg.ID).Flags.Has(domain.FlagStarred))

	evs := f.sink.byType(event.TypeUpdateMessageFlags)
	require.Len(t, evs, 1)
	assert.Equal(t, []uuid.UUID{reader.ID}, evs[0].Recipients)

	// Re-applying changes nothing and publishes nothing.
	res, err = f.flags.UpdateFlags(context.Background(), reader.ID, []int64{msg.ID}, "starred", true)
	require.NoError(t, err)
	assert.Empty(t, res.MessageIDs)
	assert.Len(t, f.sink.byType(event.TypeUpdateMessageFlags), 1)
}

func TestUpdateFlags_ReadClearSkipsUnsubscribed(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	reader := f.user("reader", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	f.subscribe(ch.ID, sender.ID)
	f.subscribe(ch.ID, reader.ID)
	msg := f.send(sender.ID, ch.ID, "x", "hello")

	_, err := f.flags.UpdateFlags(context.Background(), reader.ID, []int64{msg.ID}, "read", true)
	require.NoError(t, err)

	f.subscribe(ch.ID, reader.ID, func(m *domain.Membership) { m.Active = false })

	// Clearing read on a channel the user left is silently dropped, never a
	// stuck unread.
	res, err := f.flags.UpdateFlags(context.Background(), reader.ID, []int64{msg.ID}, "read", false)
	require.NoError(t, err)
	assert.Empty(t, res.MessageIDs)
	assert.True(t, f.record(reader.ID, msg.ID).Flags.Has(domain.FlagRead))
}

func TestUpdateFlags_BackfillOnStar(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	f.subscribe(ch.ID, sender.ID)
	msg := f.send(sender.ID, ch.ID, "x", "hello")

	// Latecomer has no record but the channel history is visible to members.
	late := f.user("late", domain.RoleMember)
	res, err := f.flags.UpdateFlags(context.Background(), late.ID, []int64{msg.ID}, "starred", true)
	require.NoError(t, err)
	assert.Equal(t, []int64{msg.ID}, res.MessageIDs)

	rec := f.record(late.ID, msg.ID)
	require.NotNil(t, rec)
	assert.Equal(t, domain.FlagHistorical|domain.FlagRead|domain.FlagStarred, rec.Flags)
}

func TestUpdateFlags_BackfillOnReadClear(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	f.subscribe(ch.ID, sender.ID)
	msg := f.send(sender.ID, ch.ID, "x", "hello")

	late := f.user("late", domain.RoleMember)
	f.subscribe(ch.ID, late.ID)

	// Clearing read backfills the record without the read bit.
	res, err := f.flags.UpdateFlags(context.Background(), late.ID, []int64{msg.ID}, "read", false)
	require.NoError(t, err)
	assert.Equal(t, []int64{msg.ID}, res.MessageIDs)

	rec := f.record(late.ID, msg.ID)
	require.NotNil(t, rec)
	assert.Equal(t, domain.FlagHistorical, rec.Flags)
}

func TestUpdateFlags_GuestCannotBackfillHiddenHistory(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	f.subscribe(ch.ID, sender.ID)
	msg := f.send(sender.ID, ch.ID, "x", "hello")

	guest := f.user("guest", domain.RoleGuest)
	_, err := f.flags.UpdateFlags(context.Background(), guest.ID, []int64{msg.ID}, "starred", true)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestUpdateFlags_ReadRetiresPushNotification(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	reader := f.user("reader", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	f.subscribe(ch.ID, sender.ID)
	f.subscribe(ch.ID, reader.ID)

	f.analyzer.result = AnalyzerResult{MentionedUserIDs: []uuid.UUID{reader.ID}}
	msg := f.send(sender.ID, ch.ID, "x", "hey @reader")
	require.True(t, f.record(reader.ID, msg.ID).Flags.Has(domain.FlagActivePushNotification))

	_, err := f.flags.UpdateFlags(context.Background(), reader.ID, []int64{msg.ID}, "read", true)
	require.NoError(t, err)

	rec := f.record(reader.ID, msg.ID)
	assert.True(t, rec.Flags.Has(domain.FlagRead))
	assert.False(t, rec.Flags.Has(domain.FlagActivePushNotification))
	assert.Equal(t, []int64{msg.ID}, f.queue.clears[reader.ID])
}

func TestMarkAllRead_Batches(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	reader := f.user("reader", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	f.subscribe(ch.ID, sender.ID)
	f.subscribe(ch.ID, reader.ID)
	for i := 0; i < 5; i++ {
		f.send(sender.ID, ch.ID, "x", "hello")
	}

	flags := NewFlagService(f.store, f.sink, f.queue, zap.NewNop(), 2)
	res, err := flags.MarkAllRead(context.Background(), reader.ID, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Count)
	assert.True(t, res.Complete)

	n, err := f.store.Deliveries().CountUnread(context.Background(), reader.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	// 2 + 2 + 1 across three batch transactions, one event each.
	evs := f.sink.byType(event.TypeUpdateMessageFlags)
	require.Len(t, evs, 3)
}

func TestMarkAllRead_BudgetStopsBetweenBatches(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	reader := f.user("reader", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	f.subscribe(ch.ID, sender.ID)
	f.subscribe(ch.ID, reader.ID)
	for i := 0; i < 3; i++ {
		f.send(sender.ID, ch.ID, "x", "hello")
	}

	flags := NewFlagService(f.store, f.sink, f.queue, zap.NewNop(), 1)
	res, err := flags.MarkAllRead(context.Background(), reader.ID, time.Nanosecond)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count)
	assert.False(t, res.Complete, "budget ran out, caller should retry")

	// Retrying picks up where the last call stopped.
	res, err = flags.MarkAllRead(context.Background(), reader.ID, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.True(t, res.Complete)
}

func TestMarkAllRead_NothingUnread(t *testing.T) {
	f := newFixture(MessageConfig{})
	reader := f.user("reader", domain.RoleMember)

	res, err := f.flags.MarkAllRead(context.Background(), reader.ID, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, res.Count)
	assert.True(t, res.Complete)
	assert.Empty(t, f.sink.byType(event.TypeUpdateMessageFlags))
}
