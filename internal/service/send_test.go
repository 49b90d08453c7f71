package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkoval/agora/internal/domain"
	"github.com/vkoval/agora/internal/event"
)

func TestSend_Direct(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)
	bob := f.user("bob", domain.RoleMember)

	sent, err := f.messages.Send(context.Background(), []MessageDraft{{
		SenderID:  alice.ID,
		Recipient: domain.DirectRecipient(alice.ID, bob.ID),
		Content:   "hi bob",
	}})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	msg := sent[0].Message
	assert.Positive(t, msg.ID)

	// Sender's copy is born read; the recipient's is unread direct.
	assert.Equal(t, domain.FlagRead|domain.FlagIsDirect, f.record(alice.ID, msg.ID).Flags)
	bobRec := f.record(bob.ID, msg.ID)
	assert.True(t, bobRec.Flags.Has(domain.FlagIsDirect))
	assert.False(t, bobRec.Flags.Has(domain.FlagRead))
	assert.True(t, bobRec.Flags.Has(domain.FlagActivePushNotification))

	assert.Equal(t, []string{"direct_message"}, f.queue.pushTriggers())
	require.Len(t, f.queue.emails, 1)
	assert.Equal(t, bob.ID, f.queue.emails[0].userID)

	evs := f.sink.byType(event.TypeMessage)
	require.Len(t, evs, 1)
	assert.Equal(t, alice.ID, evs[0].Recipients[0], "sender fans out first")
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)
	ch := f.channel("dev", alice.ID)
	f.subscribe(ch.ID, alice.ID)

	_, err := f.messages.Send(context.Background(), []MessageDraft{{
		SenderID:  alice.ID,
		Recipient: domain.ChannelRecipient(ch.ID),
		Topic:     "x",
		Content:   "   ",
	}})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.messages.Send(context.Background(), []MessageDraft{{
		SenderID:  alice.ID,
		Recipient: domain.ChannelRecipient(ch.ID),
		Topic:     " ",
		Content:   "hello",
	}})
	assert.ErrorIs(t, err, ErrMissingTopic)
}

func TestSend_MutedSenderAutoRead(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	hater := f.user("hater", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	f.subscribe(ch.ID, sender.ID)
	f.subscribe(ch.ID, hater.ID)
	require.NoError(t, f.store.Users().Mute(context.Background(), hater.ID, sender.ID))

	msg := f.send(sender.ID, ch.ID, "x", "hello")

	rec := f.record(hater.ID, msg.ID)
	assert.True(t, rec.Flags.Has(domain.FlagRead))
	assert.False(t, rec.Flags.Has(domain.FlagActivePushNotification))
	assert.Empty(t, f.queue.pushes)

	evs := f.sink.byType(event.TypeMessage)
	require.Len(t, evs, 1)
	assert.Contains(t, string(evs[0].Payload), hater.ID.String())
}

func TestSend_MentionNotifies(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	target := f.user("target", domain.RoleMember)
	other := f.user("other", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	for _, id := range []uuid.UUID{sender.ID, target.ID, other.ID} {
		f.subscribe(ch.ID, id)
	}

	f.analyzer.result = AnalyzerResult{MentionedUserIDs: []uuid.UUID{target.ID}}
	msg := f.send(sender.ID, ch.ID, "x", "hey @target")

	rec := f.record(target.ID, msg.ID)
	assert.True(t, rec.Flags.Has(domain.FlagMentioned))
	assert.True(t, rec.Flags.Has(domain.FlagActivePushNotification))
	assert.False(t, f.record(other.ID, msg.ID).Flags.Has(domain.FlagMentioned))

	assert.Equal(t, []string{"mentioned"}, f.queue.pushTriggers())
}

func TestSend_StreamWildcard(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	notifyMe := f.user("notifyme", domain.RoleMember)
	optedOut := f.user("optedout", domain.RoleMember, func(u *domain.User) {
		u.WildcardNotifyDefault = false
	})
	ch := f.channel("dev", sender.ID)
	for _, id := range []uuid.UUID{sender.ID, notifyMe.ID, optedOut.ID} {
		f.subscribe(ch.ID, id)
	}

	f.analyzer.result = AnalyzerResult{MightHaveStreamWildcard: true}
	msg := f.send(sender.ID, ch.ID, "x", "@**all** standup now")

	// Everyone but the sender gets the flag; only opted-in users get pushed.
	assert.True(t, f.record(notifyMe.ID, msg.ID).Flags.Has(domain.FlagStreamWildcardMentioned))
	assert.True(t, f.record(optedOut.ID, msg.ID).Flags.Has(domain.FlagStreamWildcardMentioned))
	assert.False(t, f.record(sender.ID, msg.ID).Flags.Has(domain.FlagStreamWildcardMentioned))

	var pushed []uuid.UUID
	for _, n := range f.queue.pushes {
		pushed = append(pushed, n.userID)
	}
	assert.Equal(t, []uuid.UUID{notifyMe.ID}, pushed)
	assert.Equal(t, []string{"stream_wildcard_mentioned"}, f.queue.pushTriggers())
}

func TestSend_NarrowSendLimitsUnread(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	inside := f.user("inside", domain.RoleMember)
	outside := f.user("outside", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	for _, id := range []uuid.UUID{sender.ID, inside.ID, outside.ID} {
		f.subscribe(ch.ID, id)
	}

	sent, err := f.messages.Send(context.Background(), []MessageDraft{{
		SenderID:           sender.ID,
		Recipient:          domain.ChannelRecipient(ch.ID),
		Topic:              "x",
		Content:            "hello",
		LimitUnreadUserIDs: []uuid.UUID{inside.ID},
	}})
	require.NoError(t, err)
	msg := sent[0].Message

	assert.False(t, f.record(inside.ID, msg.ID).Flags.Has(domain.FlagRead))
	assert.True(t, f.record(outside.ID, msg.ID).Flags.Has(domain.FlagRead))
}

func TestSend_BatchIsAtomic(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)
	ch := f.channel("dev", alice.ID)
	f.subscribe(ch.ID, alice.ID)

	_, err := f.messages.Send(context.Background(), []MessageDraft{
		{
			SenderID:  alice.ID,
			Recipient: domain.ChannelRecipient(ch.ID),
			Topic:     "x",
			Content:   "first",
		},
		{
			SenderID:  alice.ID,
			Recipient: domain.ChannelRecipient(uuid.New()),
			Topic:     "x",
			Content:   "second",
		},
	})
	assert.ErrorIs(t, err, ErrChannelNotFound)

	// The failing draft rolls back the whole batch.
	msg, getErr := f.store.Messages().GetByID(context.Background(), 1)
	require.NoError(t, getErr)
	assert.Nil(t, msg)
	assert.Empty(t, f.sink.events)
	assert.Empty(t, f.queue.pushes)
}

func TestReact_FansOutToRecordHolders(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	reader := f.user("reader", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	f.subscribe(ch.ID, sender.ID)
	f.subscribe(ch.ID, reader.ID)
	msg := f.send(sender.ID, ch.ID, "x", "hello")

	require.NoError(t, f.messages.React(context.Background(), reader.ID, msg.ID, "🎉", true))

	evs := f.sink.byType(event.TypeReaction)
	require.Len(t, evs, 1)
	assert.Len(t, evs[0].Recipients, 2)

	reactions, err := f.store.Reactions().ListForMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, "🎉", reactions[0].Emoji)

	require.NoError(t, f.messages.React(context.Background(), reader.ID, msg.ID, "🎉", false))
	reactions, err = f.store.Reactions().ListForMessage(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Empty(t, reactions)
}

func TestReact_EmptyEmoji(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)
	err := f.messages.React(context.Background(), alice.ID, 1, "  ", true)
	assert.ErrorIs(t, err, ErrEmptyReaction)
}
