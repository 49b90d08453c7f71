package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkoval/agora/internal/domain"
	"github.com/vkoval/agora/internal/event"
	"github.com/vkoval/agora/internal/repository"
)

// MessageConfig carries the realm-level knobs of the send and edit paths.
type MessageConfig struct {
	// EditWindow bounds content edits by the sender; zero means unlimited.
	EditWindow time.Duration
	// MoveWindow bounds topic/channel moves for non-moderators; zero means
	// unlimited.
	MoveWindow time.Duration
	// SystemUserID sends breadcrumb and resolve notices.
	SystemUserID uuid.UUID
}

// MessageService is the send pipeline and the edit/move state machine.
type MessageService struct {
	store    repository.Store
	resolver *AudienceResolver
	analyzer ContentAnalyzer
	sink     EventSink
	queue    NotificationQueue
	logger   *zap.Logger
	cfg      MessageConfig
}

func NewMessageService(
	store repository.Store,
	resolver *AudienceResolver,
	analyzer ContentAnalyzer,
	sink EventSink,
	queue NotificationQueue,
	logger *zap.Logger,
	cfg MessageConfig,
) *MessageService {
	return &MessageService{
		store:    store,
		resolver: resolver,
		analyzer: analyzer,
		sink:     sink,
		queue:    queue,
		logger:   logger,
		cfg:      cfg,
	}
}

// MessageDraft is one message to send. Drafts in a batch commit or fail
// together.
type MessageDraft struct {
	SenderID  uuid.UUID
	Recipient domain.Recipient
	Topic     string
	Content   string
	// LimitUnreadUserIDs, when non-nil, pre-marks the copy read for every
	// recipient outside the set (narrow sends).
	LimitUnreadUserIDs []uuid.UUID

	// allowEmptyAudience is reserved for internal system sends.
	allowEmptyAudience bool
}

type SentMessage struct {
	Message  *domain.Message
	Audience *Audience
}

type queueNotice struct {
	kind      string // "push" | "email"
	userID    uuid.UUID
	messageID int64
	trigger   string
}

// Send atomically persists the drafts, materializes delivery records and
// publishes exactly one fan-out event per message, after commit.
func (s *MessageService) Send(ctx context.Context, drafts []MessageDraft) ([]*SentMessage, error) {
	for _, d := range drafts {
		if strings.TrimSpace(d.Content) == "" {
			return nil, ErrEmptyMessage
		}
		if d.Recipient.IsChannel() && strings.TrimSpace(d.Topic) == "" {
			return nil, ErrMissingTopic
		}
	}

	var (
		sent    []*SentMessage
		events  []*event.Event
		notices []queueNotice
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sent = sent[:0]
		events = events[:0]
		notices = notices[:0]
		cache := NewRequestCache()
		for _, draft := range drafts {
			msg, ev, ns, err := s.sendOneTx(ctx, tx, cache, draft)
			if err != nil {
				return err
			}
			sent = append(sent, msg)
			events = append(events, ev)
			notices = append(notices, ns...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.flush(ctx, events, notices)
	return sent, nil
}

// sendOneTx runs inside the caller's transaction; the returned event and
// notices must only be delivered after that transaction commits.
func (s *MessageService) sendOneTx(ctx context.Context, tx repository.Tx, cache *RequestCache, draft MessageDraft) (*SentMessage, *event.Event, []queueNotice, error) {
	analysis, err := s.analyzer.Analyze(ctx, draft.Content, draft.SenderID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("analyze content: %w", err)
	}

	aud, err := s.resolver.Resolve(ctx, tx, cache, ResolveInput{
		SenderID:   draft.SenderID,
		Recipient:  draft.Recipient,
		Topic:      draft.Topic,
		Analysis:   analysis,
		AllowEmpty: draft.allowEmptyAudience,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	msg := &domain.Message{
		SenderID:        draft.SenderID,
		Recipient:       draft.Recipient,
		Topic:           draft.Topic,
		Content:         draft.Content,
		RenderedContent: analysis.Rendered,
		SentAt:          time.Now(),
	}
	if err := tx.Messages().Create(ctx, msg); err != nil {
		return nil, nil, nil, fmt.Errorf("create message: %w", err)
	}

	records, flagsByUser, notices := s.buildRecords(msg, draft, analysis, aud)
	if len(records) > 0 {
		if err := tx.Deliveries().BulkCreate(ctx, records); err != nil {
			return nil, nil, nil, fmt.Errorf("create delivery records: %w", err)
		}
	}

	ev, err := event.NewMessage(s.eventRecipients(msg.SenderID, aud), event.MessagePayload{
		Message:            wireMessage(msg),
		FlagsByUser:        flagsByUser,
		PushEligibleIDs:    aud.PushEligibleIDs.Sorted(),
		EmailEligibleIDs:   aud.EmailEligibleIDs.Sorted(),
		StreamWildcardIDs:  aud.StreamWildcardEligibleIDs.Sorted(),
		TopicWildcardIDs:   aud.TopicWildcardEligibleIDs.Sorted(),
		MutedSenderUserIDs: aud.MutedSenderUserIDs.Sorted(),
	})
	if err != nil {
		return nil, nil, nil, err
	}

	return &SentMessage{Message: msg, Audience: aud}, ev, notices, nil
}

// buildRecords computes the exact flag word for every eligible recipient and
// decides who gets a push/email notification.
func (s *MessageService) buildRecords(msg *domain.Message, draft MessageDraft, analysis *AnalyzerResult, aud *Audience) ([]domain.DeliveryRecord, map[uuid.UUID][]string, []queueNotice) {
	mentioned := NewUserSet(analysis.MentionedUserIDs...)
	groupMentioned := NewUserSet(analysis.GroupMentionedUserIDs...)
	alertWord := NewUserSet(analysis.AlertWordUserIDs...)

	var limitUnread UserSet
	if draft.LimitUnreadUserIDs != nil {
		limitUnread = NewUserSet(draft.LimitUnreadUserIDs...)
	}

	var (
		records     []domain.DeliveryRecord
		notices     []queueNotice
		flagsByUser = make(map[uuid.UUID][]string, len(aud.EligibleForRecordIDs))
	)
	for _, uid := range aud.EligibleForRecordIDs.Sorted() {
		var flags domain.MessageFlag
		if !msg.Recipient.IsChannel() {
			flags = flags.With(domain.FlagIsDirect)
		}

		// The sender never self-mentions.
		if uid != msg.SenderID {
			if mentioned.Contains(uid) {
				flags = flags.With(domain.FlagMentioned)
			}
			if groupMentioned.Contains(uid) {
				flags = flags.With(domain.FlagGroupMentioned | domain.FlagMentioned)
			}
			if aud.StreamWildcardEligibleIDs.Contains(uid) {
				flags = flags.With(domain.FlagStreamWildcardMentioned)
			}
			if aud.TopicWildcardEligibleIDs.Contains(uid) {
				flags = flags.With(domain.FlagTopicWildcardMentioned)
			}
			if alertWord.Contains(uid) {
				flags = flags.With(domain.FlagHasAlertWord)
			}
		}

		// Auto-read: own copy, muted sender, or outside a narrow send.
		if uid == msg.SenderID ||
			aud.MutedSenderUserIDs.Contains(uid) ||
			(limitUnread != nil && !limitUnread.Contains(uid)) {
			flags = flags.With(domain.FlagRead)
		}

		if trigger, ok := notifyTrigger(flags, uid, aud); ok && !flags.Has(domain.FlagRead) {
			if aud.PushEligibleIDs.Contains(uid) {
				flags = flags.With(domain.FlagActivePushNotification)
				notices = append(notices, queueNotice{kind: "push", userID: uid, messageID: msg.ID, trigger: trigger})
			}
			if aud.EmailEligibleIDs.Contains(uid) {
				notices = append(notices, queueNotice{kind: "email", userID: uid, messageID: msg.ID, trigger: trigger})
			}
		}

		records = append(records, domain.DeliveryRecord{UserID: uid, MessageID: msg.ID, Flags: flags})
		flagsByUser[uid] = flags.Names()
	}
	return records, flagsByUser, notices
}

func notifyTrigger(flags domain.MessageFlag, uid uuid.UUID, aud *Audience) (string, bool) {
	switch {
	case flags.Has(domain.FlagIsDirect):
		return "direct_message", true
	case flags.Has(domain.FlagMentioned):
		return "mentioned", true
	case flags.Has(domain.FlagStreamWildcardMentioned) && aud.WildcardNotifyIDs.Contains(uid):
		return "stream_wildcard_mentioned", true
	case flags.Has(domain.FlagTopicWildcardMentioned) && aud.WildcardNotifyIDs.Contains(uid):
		return "topic_wildcard_mentioned", true
	}
	return "", false
}

// eventRecipients is every active user plus every record holder, with the
// sender first so they observe their own message before wide fan-out
// finishes.
func (s *MessageService) eventRecipients(senderID uuid.UUID, aud *Audience) []uuid.UUID {
	union := aud.ActiveUserIDs.Union(aud.EligibleForRecordIDs)
	out := make([]uuid.UUID, 0, len(union)+1)
	out = append(out, senderID)
	for _, id := range union.Sorted() {
		if id != senderID {
			out = append(out, id)
		}
	}
	return out
}

func (s *MessageService) flush(ctx context.Context, events []*event.Event, notices []queueNotice) {
	for _, ev := range events {
		if ev != nil {
			s.sink.Publish(ctx, ev)
		}
	}
	for _, n := range notices {
		var err error
		switch n.kind {
		case "push":
			err = s.queue.EnqueuePush(ctx, n.userID, n.messageID, n.trigger)
		case "email":
			err = s.queue.EnqueueEmail(ctx, n.userID, n.messageID, n.trigger)
		}
		if err != nil {
			s.logger.Warn("enqueue notification",
				zap.String("kind", n.kind),
				zap.String("user_id", n.userID.String()),
				zap.Int64("message_id", n.messageID),
				zap.Error(err))
		}
	}
}

func wireMessage(msg *domain.Message) event.WireMessage {
	return event.WireMessage{
		ID:              msg.ID,
		SenderID:        msg.SenderID,
		RecipientType:   string(msg.Recipient.Type),
		ChannelID:       msg.Recipient.ChannelID,
		DirectUserIDs:   msg.Recipient.UserIDs,
		Topic:           msg.Topic,
		Content:         msg.Content,
		RenderedContent: msg.RenderedContent,
		SentAt:          msg.SentAt,
	}
}

// React adds or removes an emoji reaction and fans the change out to the
// message's record holders. Reacting also makes the user a topic
// participant.
func (s *MessageService) React(ctx context.Context, userID uuid.UUID, messageID int64, emoji string, add bool) error {
	if strings.TrimSpace(emoji) == "" {
		return ErrEmptyReaction
	}

	var ev *event.Event
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cache := NewRequestCache()
		user, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}
		msg, err := tx.Messages().GetByID(ctx, messageID)
		if err != nil {
			return err
		}
		if msg == nil {
			return ErrMessageNotFound
		}
		ok, err := canAccessMessage(ctx, tx, cache, user, msg)
		if err != nil {
			return err
		}
		if !ok {
			return ErrMessageNotFound
		}

		if add {
			err = tx.Reactions().Add(ctx, &domain.Reaction{
				MessageID: messageID,
				UserID:    userID,
				Emoji:     emoji,
				CreatedAt: time.Now(),
			})
		} else {
			err = tx.Reactions().Remove(ctx, messageID, userID, emoji)
		}
		if err != nil {
			return err
		}

		holders, err := tx.Deliveries().UsersWithRecords(ctx, []int64{messageID})
		if err != nil {
			return err
		}
		recipients := NewUserSet(holders...)
		recipients.Add(userID)
		ev, err = event.NewReaction(recipients.Sorted(), event.ReactionPayload{
			MessageID: messageID,
			UserID:    userID,
			Emoji:     emoji,
			Op:        flagOp(add),
		})
		return err
	})
	if err != nil {
		return err
	}

	s.sink.Publish(ctx, ev)
	return nil
}
