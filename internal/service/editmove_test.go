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

// plantMessage writes a message row directly, bypassing the send pipeline,
// so tests can control SentAt.
func plantMessage(f *fixture, sender uuid.UUID, channelID uuid.UUID, topic, content string, sentAt time.Time) *domain.Message {
	msg := &domain.Message{
		SenderID:        sender,
		Recipient:       domain.ChannelRecipient(channelID),
		Topic:           topic,
		Content:         content,
		RenderedContent: content,
		SentAt:          sentAt,
	}
	if err := f.store.Messages().Create(context.Background(), msg); err != nil {
		panic(err)
	}
	return msg
}

func TestEditMessage_Validation(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)
	ch := f.channel("dev", alice.ID)
	f.subscribe(ch.ID, alice.ID)
	msg := f.send(alice.ID, ch.ID, "x", "hello")

	_, err := f.messages.EditMessage(context.Background(), alice.ID, msg.ID, EditInput{
		Topic:         strPtr("y"),
		PropagateMode: "sideways",
	})
	assert.ErrorIs(t, err, ErrInvalidPropagate)

	_, err = f.messages.EditMessage(context.Background(), alice.ID, msg.ID, EditInput{})
	assert.ErrorIs(t, err, ErrEmptyEdit)

	_, err = f.messages.EditMessage(context.Background(), alice.ID, msg.ID, EditInput{
		Content:       strPtr("new"),
		PropagateMode: domain.PropagateLater,
	})
	assert.ErrorIs(t, err, ErrContentCannotMove)

	_, err = f.messages.EditMessage(context.Background(), alice.ID, 999, EditInput{Content: strPtr("new")})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestEditContent_OnlySenderWithinWindow(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)
	mod := f.user("mod", domain.RoleModerator)
	ch := f.channel("dev", alice.ID)
	f.subscribe(ch.ID, alice.ID)
	f.subscribe(ch.ID, mod.ID)
	msg := f.send(alice.ID, ch.ID, "x", "hello")

	// Even a moderator may not rewrite someone else's words.
	_, err := f.messages.EditMessage(context.Background(), mod.ID, msg.ID, EditInput{Content: strPtr("better")})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	windowed := newFixture(MessageConfig{EditWindow: time.Nanosecond})
	bob := windowed.user("bob", domain.RoleMember)
	ch2 := windowed.channel("dev", bob.ID)
	windowed.subscribe(ch2.ID, bob.ID)
	old := windowed.send(bob.ID, ch2.ID, "x", "hello")
	time.Sleep(time.Millisecond)

	_, err = windowed.messages.EditMessage(context.Background(), bob.ID, old.ID, EditInput{Content: strPtr("too late")})
	assert.ErrorIs(t, err, ErrEditWindowExpired)
}

func TestEditContent_RecomputesMentionBits(t *testing.T) {
	f := newFixture(MessageConfig{})
	sender := f.user("sender", domain.RoleMember)
	target := f.user("target", domain.RoleMember)
	ch := f.channel("dev", sender.ID)
	f.subscribe(ch.ID, sender.ID)
	f.subscribe(ch.ID, target.ID)

	f.analyzer.result = AnalyzerResult{MentionedUserIDs: []uuid.UUID{target.ID}}
	msg := f.send(sender.ID, ch.ID, "x", "hey @target")
	require.True(t, f.record(target.ID, msg.ID).Flags.Has(domain.FlagMentioned))

	// The edit drops the mention, so the pending push is stale.
	f.analyzer.result = AnalyzerResult{}
	res, err := f.messages.EditMessage(context.Background(), sender.ID, msg.ID, EditInput{Content: strPtr("hey everyone")})
	require.NoError(t, err)
	assert.Equal(t, []int64{msg.ID}, res.MessageIDs)

	rec := f.record(target.ID, msg.ID)
	assert.False(t, rec.Flags.Has(domain.FlagMentioned))
	assert.False(t, rec.Flags.Has(domain.FlagActivePushNotification))
	assert.Equal(t, []int64{msg.ID}, f.queue.clears[target.ID])

	updated, err := f.store.Messages().GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "hey everyone", updated.Content)
	require.Len(t, updated.EditHistory, 1)
	assert.Equal(t, "hey @target", *updated.EditHistory[0].PrevContent)

	evs := f.sink.byType(event.TypeUpdateMessage)
	require.Len(t, evs, 1)
	assert.Contains(t, string(evs[0].Payload), "hey everyone")
}

func TestEditTopic_PropagateModes(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)
	ch := f.channel("dev", alice.ID)
	f.subscribe(ch.ID, alice.ID)
	first := f.send(alice.ID, ch.ID, "plan", "one")
	second := f.send(alice.ID, ch.ID, "plan", "two")
	third := f.send(alice.ID, ch.ID, "plan", "three")

	topicOf := func(id int64) string {
		msg, err := f.store.Messages().GetByID(context.Background(), id)
		require.NoError(t, err)
		return msg.Topic
	}

	res, err := f.messages.EditMessage(context.Background(), alice.ID, second.ID, EditInput{
		Topic:         strPtr("plan-b"),
		PropagateMode: domain.PropagateLater,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{second.ID, third.ID}, res.MessageIDs)
	assert.Equal(t, "plan", topicOf(first.ID))
	assert.Equal(t, "plan-b", topicOf(second.ID))
	assert.Equal(t, "plan-b", topicOf(third.ID))

	res, err = f.messages.EditMessage(context.Background(), alice.ID, second.ID, EditInput{
		Topic:         strPtr("plan-c"),
		PropagateMode: domain.PropagateAll,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{second.ID, third.ID}, res.MessageIDs)

	res, err = f.messages.EditMessage(context.Background(), alice.ID, first.ID, EditInput{
		Topic: strPtr("solo"),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{first.ID}, res.MessageIDs)
	assert.Equal(t, "solo", topicOf(first.ID))
	assert.Equal(t, "plan-c", topicOf(second.ID))
}

func TestEditTopic_DirectMessageRejected(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)
	bob := f.user("bob", domain.RoleMember)

	sent, err := f.messages.Send(context.Background(), []MessageDraft{{
		SenderID:  alice.ID,
		Recipient: domain.DirectRecipient(alice.ID, bob.ID),
		Content:   "psst",
	}})
	require.NoError(t, err)

	_, err = f.messages.EditMessage(context.Background(), alice.ID, sent[0].Message.ID, EditInput{
		Topic: strPtr("nope"),
	})
	assert.ErrorIs(t, err, ErrNotChannelMessage)
}

func TestMove_DeadlineForMembers(t *testing.T) {
	f := newFixture(MessageConfig{MoveWindow: time.Hour})
	alice := f.user("alice", domain.RoleMember)
	ch := f.channel("dev", alice.ID)
	f.subscribe(ch.ID, alice.ID)

	old := time.Now().Add(-2 * time.Hour)
	plantMessage(f, alice.ID, ch.ID, "plan", "one", old)
	plantMessage(f, alice.ID, ch.ID, "plan", "two", old)
	recent := plantMessage(f, alice.ID, ch.ID, "plan", "three", time.Now())

	_, err := f.messages.EditMessage(context.Background(), alice.ID, recent.ID, EditInput{
		Topic:         strPtr("plan-b"),
		PropagateMode: domain.PropagateAll,
	})
	var dl *DeadlineExceededError
	require.ErrorAs(t, err, &dl)
	assert.Equal(t, recent.ID, dl.FirstMovableID)
	assert.Equal(t, 1, dl.MovableCount)
	assert.Equal(t, 3, dl.TotalCount)

	// Nothing moved.
	msg, err := f.store.Messages().GetByID(context.Background(), recent.ID)
	require.NoError(t, err)
	assert.Equal(t, "plan", msg.Topic)
}

func TestMove_ModeratorBypassesDeadline(t *testing.T) {
	f := newFixture(MessageConfig{MoveWindow: time.Hour})
	alice := f.user("alice", domain.RoleMember)
	mod := f.user("mod", domain.RoleModerator)
	ch := f.channel("dev", alice.ID)
	f.subscribe(ch.ID, alice.ID)
	f.subscribe(ch.ID, mod.ID)

	old := plantMessage(f, alice.ID, ch.ID, "plan", "one", time.Now().Add(-2*time.Hour))

	res, err := f.messages.EditMessage(context.Background(), mod.ID, old.ID, EditInput{
		Topic:         strPtr("plan-b"),
		PropagateMode: domain.PropagateAll,
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{old.ID}, res.MessageIDs)
}

func TestChannelMove_ReconcilesAccess(t *testing.T) {
	f := newFixture(MessageConfig{})
	actor := f.user("actor", domain.RoleMember)
	leaver := f.user("leaver", domain.RoleMember)
	destie := f.user("destie", domain.RoleMember)

	src := f.channel("eng", actor.ID)
	f.subscribe(src.ID, actor.ID)
	f.subscribe(src.ID, leaver.ID)

	private := f.channel("private", actor.ID, func(c *domain.Channel) {
		c.InviteOnly = true
		c.HistoryPublicToSubscribers = false
	})
	f.subscribe(private.ID, actor.ID)
	f.subscribe(private.ID, destie.ID)

	msg := f.send(actor.ID, src.ID, "secret", "move me")
	require.NotNil(t, f.record(leaver.ID, msg.ID))

	res, err := f.messages.EditMessage(context.Background(), actor.ID, msg.ID, EditInput{
		ChannelID: idPtr(private.ID),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{msg.ID}, res.MessageIDs)

	moved, err := f.store.Messages().GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, private.ID, moved.Recipient.ChannelID)

	// Leaver cannot see the private channel: record gone, removal event sent.
	assert.Nil(t, f.record(leaver.ID, msg.ID))
	removed := f.sink.byType(event.TypeDeleteMessage)
	require.Len(t, removed, 1)
	assert.Equal(t, []uuid.UUID{leaver.ID}, removed[0].Recipients)

	// Protected-history destination backfills its subscribers.
	destRec := f.record(destie.ID, msg.ID)
	require.NotNil(t, destRec)
	assert.Equal(t, domain.FlagRead|domain.FlagHistorical, destRec.Flags)

	// Update event excludes the losing user and precedes the removal.
	updates := f.sink.byType(event.TypeUpdateMessage)
	require.Len(t, updates, 1)
	assert.NotContains(t, updates[0].Recipients, leaver.ID)
	assert.Same(t, updates[0], f.sink.events[len(f.sink.events)-2])
	assert.Same(t, removed[0], f.sink.events[len(f.sink.events)-1])
}

func TestTopicMove_MigratesPreferences(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)
	follower := f.user("follower", domain.RoleMember)
	muter := f.user("muter", domain.RoleMember)
	ch := f.channel("dev", alice.ID)
	for _, id := range []uuid.UUID{alice.ID, follower.ID, muter.ID} {
		f.subscribe(ch.ID, id)
	}
	msg := f.send(alice.ID, ch.ID, "a", "hello")

	setPref := func(userID uuid.UUID, topic string, policy domain.TopicPolicy) {
		require.NoError(t, f.store.TopicPreferences().Set(context.Background(), &domain.TopicPreference{
			UserID: userID, ChannelID: ch.ID, Topic: topic, Policy: policy,
		}))
	}
	setPref(follower.ID, "a", domain.PolicyFollowed)
	// Destination-only Muted with an empty destination topic merges away.
	setPref(muter.ID, "b", domain.PolicyMuted)

	_, err := f.messages.EditMessage(context.Background(), alice.ID, msg.ID, EditInput{
		Topic:         strPtr("b"),
		PropagateMode: domain.PropagateAll,
	})
	require.NoError(t, err)

	pref, err := f.store.TopicPreferences().Get(context.Background(), follower.ID, ch.ID, "b")
	require.NoError(t, err)
	require.NotNil(t, pref)
	assert.Equal(t, domain.PolicyFollowed, pref.Policy)

	gone, err := f.store.TopicPreferences().Get(context.Background(), follower.ID, ch.ID, "a")
	require.NoError(t, err)
	assert.Nil(t, gone)

	gone, err = f.store.TopicPreferences().Get(context.Background(), muter.ID, ch.ID, "b")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTopicMove_CarriesSourcePolicyToActiveDestination(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)
	watcher := f.user("watcher", domain.RoleMember)
	ch := f.channel("dev", alice.ID)
	f.subscribe(ch.ID, alice.ID)
	f.subscribe(ch.ID, watcher.ID)

	msg := f.send(alice.ID, ch.ID, "a", "hello")
	f.send(alice.ID, ch.ID, "b", "already here")

	require.NoError(t, f.store.TopicPreferences().Set(context.Background(), &domain.TopicPreference{
		UserID: watcher.ID, ChannelID: ch.ID, Topic: "a", Policy: domain.PolicyUnmuted,
	}))

	_, err := f.messages.EditMessage(context.Background(), alice.ID, msg.ID, EditInput{
		Topic:         strPtr("b"),
		PropagateMode: domain.PropagateAll,
	})
	require.NoError(t, err)

	// One row survives, at the destination, still unmuted.
	pref, err := f.store.TopicPreferences().Get(context.Background(), watcher.ID, ch.ID, "b")
	require.NoError(t, err)
	require.NotNil(t, pref)
	assert.Equal(t, domain.PolicyUnmuted, pref.Policy)

	gone, err := f.store.TopicPreferences().Get(context.Background(), watcher.ID, ch.ID, "a")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestTopicMove_DestinationPolicyWinsWhenActive(t *testing.T) {
	f := newFixture(MessageConfig{})
	alice := f.user("alice", domain.RoleMember)
	torn := f.user("torn", domain.RoleMember)
	ch := f.channel("dev", alice.ID)
	f.subscribe(ch.ID, alice.ID)
	f.subscribe(ch.ID, torn.ID)

	msg := f.send(alice.ID, ch.ID, "a", "hello")
	f.send(alice.ID, ch.ID, "b", "already here")

	for topic, policy := range map[string]domain.TopicPolicy{
		"a": domain.PolicyMuted,
		"b": domain.PolicyUnmuted,
	} {
		require.NoError(t, f.store.TopicPreferences().Set(context.Background(), &domain.TopicPreference{
			UserID: torn.ID, ChannelID: ch.ID, Topic: topic, Policy: policy,
		}))
	}

	_, err := f.messages.EditMessage(context.Background(), alice.ID, msg.ID, EditInput{
		Topic:         strPtr("b"),
		PropagateMode: domain.PropagateAll,
	})
	require.NoError(t, err)

	// The destination already had traffic, so its more-visible policy wins.
	pref, err := f.store.TopicPreferences().Get(context.Background(), torn.ID, ch.ID, "b")
	require.NoError(t, err)
	require.NotNil(t, pref)
	assert.Equal(t, domain.PolicyUnmuted, pref.Policy)
}

func systemFixture(t *testing.T) (*fixture, *domain.User) {
	t.Helper()
	f := newFixture(MessageConfig{})
	system := f.user("notification-bot", domain.RoleMember, func(u *domain.User) {
		u.IsWebhookBot = true
	})
	cfg := MessageConfig{SystemUserID: system.ID}
	f.cfg = cfg
	logger := zap.NewNop()
	f.messages = NewMessageService(f.store, NewAudienceResolver(logger), f.analyzer, f.sink, f.queue, logger, cfg)
	return f, system
}

func TestResolveToggle_PostsMarkerOnly(t *testing.T) {
	f, system := systemFixture(t)
	alice := f.user("alice", domain.RoleMember)
	ch := f.channel("dev", alice.ID)
	f.subscribe(ch.ID, alice.ID)
	msg := f.send(alice.ID, ch.ID, "bug", "it crashes")

	_, err := f.messages.EditMessage(context.Background(), alice.ID, msg.ID, EditInput{
		Topic:          strPtr(domain.ResolvedTopicPrefix + "bug"),
		PropagateMode:  domain.PropagateAll,
		NotifyOldTopic: true,
		NotifyNewTopic: true,
	})
	require.NoError(t, err)

	marker := lastMessage(t, f)
	assert.Equal(t, system.ID, marker.SenderID)
	assert.Equal(t, domain.ResolvedTopicPrefix+"bug", marker.Topic)
	assert.Equal(t, "@**alice** resolved this topic.", marker.Content)

	_, err = f.messages.EditMessage(context.Background(), alice.ID, msg.ID, EditInput{
		Topic:         strPtr("bug"),
		PropagateMode: domain.PropagateAll,
	})
	require.NoError(t, err)
	assert.Equal(t, "@**alice** reopened this topic.", lastMessage(t, f).Content)
}

func TestChannelMove_Breadcrumbs(t *testing.T) {
	f, system := systemFixture(t)
	alice := f.user("alice", domain.RoleMember)
	bob := f.user("bob", domain.RoleMember)
	src := f.channel("eng", alice.ID)
	dest := f.channel("ops", alice.ID)
	f.subscribe(src.ID, alice.ID)
	f.subscribe(src.ID, bob.ID)
	f.subscribe(dest.ID, alice.ID)
	msg := f.send(alice.ID, src.ID, "incident", "paging")

	_, err := f.messages.EditMessage(context.Background(), alice.ID, msg.ID, EditInput{
		ChannelID:      idPtr(dest.ID),
		PropagateMode:  domain.PropagateAll,
		NotifyOldTopic: true,
		NotifyNewTopic: true,
	})
	require.NoError(t, err)

	var breadcrumbs []*domain.Message
	for id := msg.ID + 1; ; id++ {
		m, err := f.store.Messages().GetByID(context.Background(), id)
		require.NoError(t, err)
		if m == nil {
			break
		}
		breadcrumbs = append(breadcrumbs, m)
	}
	require.Len(t, breadcrumbs, 2)
	for _, m := range breadcrumbs {
		assert.Equal(t, system.ID, m.SenderID)
	}
	assert.Equal(t, dest.ID, breadcrumbs[0].Recipient.ChannelID)
	assert.Equal(t, "This topic was moved here from #**eng > incident** by @**alice**.", breadcrumbs[0].Content)
	assert.Equal(t, src.ID, breadcrumbs[1].Recipient.ChannelID)
	assert.Equal(t, "This topic was moved to #**ops > incident** by @**alice**.", breadcrumbs[1].Content)
}

func TestChannelMove_OldTopicNoteNeedsAnAudience(t *testing.T) {
	f, _ := systemFixture(t)
	alice := f.user("alice", domain.RoleMember)
	src := f.channel("eng", alice.ID)
	dest := f.channel("ops", alice.ID)
	f.subscribe(src.ID, alice.ID)
	f.subscribe(dest.ID, alice.ID)
	msg := f.send(alice.ID, src.ID, "incident", "paging")

	_, err := f.messages.EditMessage(context.Background(), alice.ID, msg.ID, EditInput{
		ChannelID:      idPtr(dest.ID),
		PropagateMode:  domain.PropagateAll,
		NotifyOldTopic: true,
		NotifyNewTopic: false,
	})
	require.NoError(t, err)

	// The actor was the only active member of the source: nobody is left to
	// read the note, so none is posted.
	m, err := f.store.Messages().GetByID(context.Background(), msg.ID+1)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func lastMessage(t *testing.T, f *fixture) *domain.Message {
	t.Helper()
	var last *domain.Message
	for id := int64(1); ; id++ {
		m, err := f.store.Messages().GetByID(context.Background(), id)
		require.NoError(t, err)
		if m == nil {
			break
		}
		last = m
	}
	require.NotNil(t, last)
	return last
}
