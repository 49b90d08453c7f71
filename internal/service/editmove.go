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

// EditInput describes one edit/move transition. Nil fields are unchanged.
type EditInput struct {
	Content       *string
	Topic         *string
	ChannelID     *uuid.UUID
	PropagateMode domain.PropagateMode
	// Breadcrumb toggles for channel moves.
	NotifyOldTopic bool
	NotifyNewTopic bool
}

type EditResult struct {
	// MessageIDs actually rewritten, ascending.
	MessageIDs []int64 `json:"message_ids"`
}

// EditMessage mutates content, topic and/or channel of a message and, for
// moves, a suffix or the whole of its topic. Every precondition is checked
// before any mutation; a failure leaves no partial state.
func (s *MessageService) EditMessage(ctx context.Context, actorID uuid.UUID, messageID int64, in EditInput) (*EditResult, error) {
	if in.PropagateMode == "" {
		in.PropagateMode = domain.PropagateOne
	}
	if _, ok := domain.ParsePropagateMode(string(in.PropagateMode)); !ok {
		return nil, fmt.Errorf("%q: %w", in.PropagateMode, ErrInvalidPropagate)
	}
	if in.Content == nil && in.Topic == nil && in.ChannelID == nil {
		return nil, ErrEmptyEdit
	}
	if in.Content != nil {
		if strings.TrimSpace(*in.Content) == "" {
			return nil, ErrEmptyMessage
		}
		// Content edits never propagate.
		if in.PropagateMode != domain.PropagateOne {
			return nil, ErrContentCannotMove
		}
	}

	var (
		result  EditResult
		events  []*event.Event
		notices []queueNotice
		cleared map[uuid.UUID][]int64
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		events = nil
		notices = nil
		cleared = make(map[uuid.UUID][]int64)
		cache := NewRequestCache()

		actor, err := tx.Users().GetByID(ctx, actorID)
		if err != nil {
			return err
		}
		if actor == nil {
			return ErrUserNotFound
		}
		msg, err := tx.Messages().GetByID(ctx, messageID)
		if err != nil {
			return err
		}
		if msg == nil {
			return ErrMessageNotFound
		}
		if ok, err := canAccessMessage(ctx, tx, cache, actor, msg); err != nil {
			return err
		} else if !ok {
			return ErrMessageNotFound
		}

		topicChanged := in.Topic != nil && *in.Topic != msg.Topic
		channelChanged := in.ChannelID != nil && msg.Recipient.IsChannel() && *in.ChannelID != msg.Recipient.ChannelID
		if (in.Topic != nil || in.ChannelID != nil) && !msg.Recipient.IsChannel() {
			return ErrNotChannelMessage
		}
		if !topicChanged && !channelChanged && in.Content == nil {
			return ErrEmptyEdit
		}

		op := editOp{
			actor:          actor,
			msg:            msg,
			input:          in,
			topicChanged:   topicChanged,
			channelChanged: channelChanged,
			now:            time.Now(),
		}

		if err := s.checkEditPreconditions(ctx, tx, cache, &op); err != nil {
			return err
		}

		payload := event.UpdateMessagePayload{
			MessageID:     msg.ID,
			UserID:        actorID,
			PropagateMode: string(in.PropagateMode),
			EditTimestamp: op.now,
		}

		if op.moving() {
			if err := s.applyMove(ctx, tx, cache, &op, &payload, &events, &notices); err != nil {
				return err
			}
		}

		if in.Content != nil {
			if err := s.applyContentEdit(ctx, tx, cache, &op, &payload, cleared); err != nil {
				return err
			}
		}

		payload.MessageIDs = op.affected
		recipients := op.updateRecipients.Sorted()
		ev, err := event.NewUpdateMessage(recipients, payload)
		if err != nil {
			return err
		}
		// The update event precedes the removal event and any breadcrumbs.
		ordered := []*event.Event{ev}
		if op.removedEvent != nil {
			ordered = append(ordered, op.removedEvent)
		}
		events = append(ordered, events...)

		result = EditResult{MessageIDs: op.affected}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, ev := range events {
		s.sink.Publish(ctx, ev)
	}
	s.flush(ctx, nil, notices)
	for uid, ids := range cleared {
		if err := s.queue.ClearPush(ctx, uid, ids); err != nil {
			s.logger.Warn("clear push notifications", zap.Error(err), zap.String("user_id", uid.String()))
		}
	}
	return &result, nil
}

// editOp is the in-flight state of one edit/move transition.
type editOp struct {
	actor          *domain.User
	msg            *domain.Message
	input          EditInput
	topicChanged   bool
	channelChanged bool
	now            time.Time

	affected         []int64
	wholeTopicMoved  bool
	destChannel      *domain.Channel
	updateRecipients UserSet
	removedEvent     *event.Event
}

func (op *editOp) moving() bool {
	return op.topicChanged || op.channelChanged
}

func (op *editOp) sourceChannelID() uuid.UUID {
	return op.msg.Recipient.ChannelID
}

func (op *editOp) destChannelID() uuid.UUID {
	if op.channelChanged {
		return *op.input.ChannelID
	}
	return op.msg.Recipient.ChannelID
}

func (op *editOp) destTopic() string {
	if op.input.Topic != nil {
		return *op.input.Topic
	}
	return op.msg.Topic
}

// checkEditPreconditions fails the whole operation before any write:
// permission, edit window, destination access, and the move time budget
// computed by walking the ordered affected-id list.
func (s *MessageService) checkEditPreconditions(ctx context.Context, tx repository.Tx, cache *RequestCache, op *editOp) error {
	if op.input.Content != nil {
		if op.actor.ID != op.msg.SenderID {
			return fmt.Errorf("content edit: %w", ErrPermissionDenied)
		}
		if s.cfg.EditWindow > 0 && op.now.Sub(op.msg.SentAt) > s.cfg.EditWindow {
			return ErrEditWindowExpired
		}
	}

	if !op.moving() {
		op.affected = []int64{op.msg.ID}
		return nil
	}

	if !op.actor.Role.CanMoveWithoutDeadline() && op.actor.ID != op.msg.SenderID {
		return fmt.Errorf("move: %w", ErrPermissionDenied)
	}

	if op.channelChanged {
		dest, err := cache.Channel(ctx, tx, op.destChannelID())
		if err != nil {
			return err
		}
		if dest == nil {
			return ErrChannelNotFound
		}
		subscribed, err := isActivelySubscribed(ctx, tx, cache, dest.ID, op.actor.ID)
		if err != nil {
			return err
		}
		if !dest.HistoryVisibleTo(op.actor, subscribed) && !subscribed {
			return fmt.Errorf("destination channel: %w", ErrPermissionDenied)
		}
		op.destChannel = dest
	}

	var err error
	switch op.input.PropagateMode {
	case domain.PropagateOne:
		op.affected = []int64{op.msg.ID}
	case domain.PropagateLater:
		op.affected, err = tx.Messages().IDsInTopic(ctx, op.sourceChannelID(), op.msg.Topic, op.msg.ID)
	case domain.PropagateAll:
		op.affected, err = tx.Messages().IDsInTopic(ctx, op.sourceChannelID(), op.msg.Topic, 0)
	}
	if err != nil {
		return err
	}

	if s.cfg.MoveWindow > 0 && !op.actor.Role.CanMoveWithoutDeadline() {
		if err := s.checkMoveDeadline(ctx, tx, op); err != nil {
			return err
		}
	}
	return nil
}

// checkMoveDeadline walks the ordered id list until the deadline and fails
// with enough data for the caller to offer moving only the recent suffix.
func (s *MessageService) checkMoveDeadline(ctx context.Context, tx repository.Tx, op *editOp) error {
	msgs, err := tx.Messages().GetByIDs(ctx, op.affected)
	if err != nil {
		return err
	}
	cutoff := op.now.Add(-s.cfg.MoveWindow)
	for i, id := range op.affected {
		m := msgs[id]
		if m == nil {
			return fmt.Errorf("message %d: %w", id, ErrMessageNotFound)
		}
		if !m.SentAt.Before(cutoff) {
			if i == 0 {
				return nil
			}
			return &DeadlineExceededError{
				FirstMovableID: id,
				MovableCount:   len(op.affected) - i,
				TotalCount:     len(op.affected),
			}
		}
	}
	return &DeadlineExceededError{
		FirstMovableID: 0,
		MovableCount:   0,
		TotalCount:     len(op.affected),
	}
}

func (s *MessageService) applyMove(ctx context.Context, tx repository.Tx, cache *RequestCache, op *editOp, payload *event.UpdateMessagePayload, events *[]*event.Event, notices *[]queueNotice) error {
	srcChannelID := op.sourceChannelID()
	srcTopic := op.msg.Topic
	destChannelID := op.destChannelID()
	destTopic := op.destTopic()

	// Read pre-move state the migration and breadcrumbs depend on.
	destHadMessages, err := tx.Messages().TopicHasMessages(ctx, destChannelID, destTopic)
	if err != nil {
		return err
	}
	if err := s.detectWholeTopicMove(ctx, tx, cache, op); err != nil {
		return err
	}
	holdersBefore, err := tx.Deliveries().UsersWithRecords(ctx, op.affected)
	if err != nil {
		return err
	}

	if err := tx.Messages().Retarget(ctx, op.affected, destChannelID, destTopic, op.now); err != nil {
		return fmt.Errorf("retarget messages: %w", err)
	}
	entry := domain.EditHistoryEntry{UserID: op.actor.ID, Timestamp: op.now}
	if op.topicChanged {
		entry.PrevTopic = &srcTopic
	}
	if op.channelChanged {
		entry.PrevChannelID = &srcChannelID
	}
	if err := tx.Messages().AppendEditHistory(ctx, op.affected, entry); err != nil {
		return fmt.Errorf("append edit history: %w", err)
	}

	if op.topicChanged {
		payload.OrigTopic = &srcTopic
		topic := destTopic
		payload.NewTopic = &topic
	}
	if op.channelChanged {
		orig := srcChannelID
		dest := destChannelID
		payload.OrigChannelID = &orig
		payload.NewChannelID = &dest
	}

	losing := NewUserSet()
	if op.channelChanged {
		losing, err = s.reconcileAccess(ctx, tx, cache, op, srcChannelID, srcTopic, holdersBefore)
		if err != nil {
			return err
		}
	}

	if op.wholeTopicMoved {
		if err := s.migrateTopicPreferences(ctx, tx, cache, srcChannelID, srcTopic, destChannelID, destTopic, destHadMessages); err != nil {
			return err
		}
	}

	recipients, err := s.moveEventRecipients(ctx, tx, cache, srcChannelID, destChannelID, holdersBefore, losing)
	if err != nil {
		return err
	}
	op.updateRecipients = recipients

	return s.sendMoveBreadcrumbs(ctx, tx, cache, op, srcChannelID, srcTopic, destChannelID, destTopic, events, notices)
}

// detectWholeTopicMove judges, from the acting user's accessible view,
// whether the move relocates the entire visible topic. Only then does the
// topic-preference migration run.
func (s *MessageService) detectWholeTopicMove(ctx context.Context, tx repository.Tx, cache *RequestCache, op *editOp) error {
	if op.input.PropagateMode == domain.PropagateAll {
		op.wholeTopicMoved = true
		return nil
	}

	allIDs, err := tx.Messages().IDsInTopic(ctx, op.sourceChannelID(), op.msg.Topic, 0)
	if err != nil {
		return err
	}

	visible := allIDs
	srcChannel, err := cache.Channel(ctx, tx, op.sourceChannelID())
	if err != nil {
		return err
	}
	subscribed, err := isActivelySubscribed(ctx, tx, cache, op.sourceChannelID(), op.actor.ID)
	if err != nil {
		return err
	}
	if srcChannel == nil || !srcChannel.HistoryVisibleTo(op.actor, subscribed) {
		records, err := tx.Deliveries().GetForUpdate(ctx, op.actor.ID, allIDs)
		if err != nil {
			return err
		}
		visible = visible[:0]
		for _, rec := range records {
			visible = append(visible, rec.MessageID)
		}
	}

	moved := make(map[int64]struct{}, len(op.affected))
	for _, id := range op.affected {
		moved[id] = struct{}{}
	}
	for _, id := range visible {
		if _, ok := moved[id]; !ok {
			return nil
		}
	}
	op.wholeTopicMoved = true
	return nil
}

// reconcileAccess deletes delivery records for users who lose the right to
// see the moved messages and backfills read+historical records for new
// subscribers who could not otherwise see them. Losing users get a
// "message removed" event instead of an edit event.
func (s *MessageService) reconcileAccess(ctx context.Context, tx repository.Tx, cache *RequestCache, op *editOp, srcChannelID uuid.UUID, srcTopic string, holdersBefore []uuid.UUID) (UserSet, error) {
	dest := op.destChannel

	everSubscribed, err := tx.Memberships().EverSubscribedUserIDs(ctx, srcChannelID)
	if err != nil {
		return nil, err
	}
	destMembers, err := cache.Memberships(ctx, tx, dest.ID)
	if err != nil {
		return nil, err
	}
	destActive := NewUserSet()
	for _, m := range destMembers {
		if m.Active {
			destActive.Add(m.UserID)
		}
	}

	userIDs := NewUserSet(everSubscribed...).Union(destActive)
	users, err := cache.Users(ctx, tx, userIDs.Sorted())
	if err != nil {
		return nil, err
	}

	keeps := func(id uuid.UUID) bool {
		u, ok := users[id]
		if !ok {
			return false
		}
		return dest.HistoryVisibleTo(u, destActive.Contains(id)) || destActive.Contains(id)
	}

	losing := NewUserSet()
	for _, id := range everSubscribed {
		if !keeps(id) {
			losing.Add(id)
		}
	}

	losingHolders := NewUserSet(holdersBefore...).Intersect(losing)
	if len(losingHolders) > 0 {
		if err := tx.Deliveries().DeleteForUsers(ctx, losingHolders.Sorted(), op.affected); err != nil {
			return nil, err
		}
		ev, err := event.NewDeleteMessage(losingHolders.Sorted(), event.DeleteMessagePayload{
			MessageIDs: op.affected,
			ChannelID:  srcChannelID,
			Topic:      srcTopic,
		})
		if err != nil {
			return nil, err
		}
		op.removedEvent = ev
	}

	// Destinations without shared history need explicit records for their
	// current subscribers, or the moved messages would stay invisible.
	if !dest.HistoryPublicToSubscribers {
		holders := NewUserSet(holdersBefore...)
		var backfills []domain.DeliveryRecord
		for _, id := range destActive.Sorted() {
			if holders.Contains(id) || losing.Contains(id) {
				continue
			}
			if u, ok := users[id]; !ok || u.Deactivated || u.IsWebhookBot {
				continue
			}
			for _, msgID := range op.affected {
				backfills = append(backfills, domain.DeliveryRecord{
					UserID:    id,
					MessageID: msgID,
					Flags:     domain.FlagRead | domain.FlagHistorical,
				})
			}
		}
		if len(backfills) > 0 {
			if err := tx.Deliveries().BulkCreate(ctx, backfills); err != nil {
				return nil, err
			}
		}
	}
	return losing, nil
}

// migrateTopicPreferences merges each affected user's source and destination
// topic policies. Followed beats any other value; otherwise the source
// policy is kept when the destination topic had no messages, else the
// more-visible policy wins with ties keeping the source. The source row is
// always cleared.
func (s *MessageService) migrateTopicPreferences(ctx context.Context, tx repository.Tx, cache *RequestCache, srcChannelID uuid.UUID, srcTopic string, destChannelID uuid.UUID, destTopic string, destHadMessages bool) error {
	srcPrefs, err := tx.TopicPreferences().ListForTopic(ctx, srcChannelID, srcTopic)
	if err != nil {
		return err
	}
	destPrefs, err := tx.TopicPreferences().ListForTopic(ctx, destChannelID, destTopic)
	if err != nil {
		return err
	}

	srcByUser := make(map[uuid.UUID]domain.TopicPolicy, len(srcPrefs))
	for _, p := range srcPrefs {
		srcByUser[p.UserID] = p.Policy
	}
	destByUser := make(map[uuid.UUID]domain.TopicPolicy, len(destPrefs))
	for _, p := range destPrefs {
		destByUser[p.UserID] = p.Policy
	}

	affected := NewUserSet()
	for id := range srcByUser {
		affected.Add(id)
	}
	for id := range destByUser {
		affected.Add(id)
	}

	for _, userID := range affected.Sorted() {
		merged := domain.MergeTopicPolicies(srcByUser[userID], destByUser[userID], destHadMessages)

		if _, ok := srcByUser[userID]; ok {
			if err := tx.TopicPreferences().Delete(ctx, userID, srcChannelID, srcTopic); err != nil {
				return err
			}
		}
		if merged == domain.PolicyInherit {
			if _, ok := destByUser[userID]; ok {
				if err := tx.TopicPreferences().Delete(ctx, userID, destChannelID, destTopic); err != nil {
					return err
				}
			}
			continue
		}
		err := tx.TopicPreferences().Set(ctx, &domain.TopicPreference{
			UserID:    userID,
			ChannelID: destChannelID,
			Topic:     destTopic,
			Policy:    merged,
			UpdatedAt: time.Now(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *MessageService) moveEventRecipients(ctx context.Context, tx repository.Tx, cache *RequestCache, srcChannelID, destChannelID uuid.UUID, holdersBefore []uuid.UUID, losing UserSet) (UserSet, error) {
	recipients := NewUserSet(holdersBefore...)
	for _, channelID := range []uuid.UUID{srcChannelID, destChannelID} {
		members, err := cache.Memberships(ctx, tx, channelID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m.Active {
				recipients.Add(m.UserID)
			}
		}
	}
	return recipients.Minus(losing), nil
}

// sendMoveBreadcrumbs posts the system-sender notes summarizing a move. A
// bare resolve/unresolve of the topic name is a one-off marker notification,
// not a breadcrumb.
func (s *MessageService) sendMoveBreadcrumbs(ctx context.Context, tx repository.Tx, cache *RequestCache, op *editOp, srcChannelID uuid.UUID, srcTopic string, destChannelID uuid.UUID, destTopic string, events *[]*event.Event, notices *[]queueNotice) error {
	if s.cfg.SystemUserID == uuid.Nil {
		return nil
	}

	actorName := op.actor.DisplayName

	if !op.channelChanged && domain.IsResolveToggle(srcTopic, destTopic) {
		verb := "resolved"
		if !domain.IsTopicResolved(destTopic) {
			verb = "reopened"
		}
		content := fmt.Sprintf("@**%s** %s this topic.", actorName, verb)
		return s.sendBreadcrumbTx(ctx, tx, cache, destChannelID, destTopic, content, events, notices)
	}

	if !op.channelChanged {
		return nil
	}

	srcChannel, err := cache.Channel(ctx, tx, srcChannelID)
	if err != nil {
		return err
	}
	srcName := ""
	if srcChannel != nil {
		srcName = srcChannel.Name
	}
	destName := op.destChannel.Name

	if op.input.NotifyNewTopic {
		var content string
		switch {
		case op.wholeTopicMoved:
			content = fmt.Sprintf("This topic was moved here from #**%s > %s** by @**%s**.", srcName, srcTopic, actorName)
		case len(op.affected) == 1:
			content = fmt.Sprintf("A message was moved here from #**%s > %s** by @**%s**.", srcName, srcTopic, actorName)
		default:
			content = fmt.Sprintf("%d messages were moved here from #**%s > %s** by @**%s**.", len(op.affected), srcName, srcTopic, actorName)
		}
		if err := s.sendBreadcrumbTx(ctx, tx, cache, destChannelID, destTopic, content, events, notices); err != nil {
			return err
		}
	}

	if op.input.NotifyOldTopic {
		visible, err := s.oldTopicVisibleToOthers(ctx, tx, cache, srcChannelID, op.actor.ID)
		if err != nil {
			return err
		}
		if visible {
			var content string
			switch {
			case op.wholeTopicMoved:
				content = fmt.Sprintf("This topic was moved to #**%s > %s** by @**%s**.", destName, destTopic, actorName)
			case len(op.affected) == 1:
				content = fmt.Sprintf("A message was moved from this topic to #**%s > %s** by @**%s**.", destName, destTopic, actorName)
			default:
				content = fmt.Sprintf("%d messages were moved from this topic to #**%s > %s** by @**%s**.", len(op.affected), destName, destTopic, actorName)
			}
			if err := s.sendBreadcrumbTx(ctx, tx, cache, srcChannelID, srcTopic, content, events, notices); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *MessageService) oldTopicVisibleToOthers(ctx context.Context, tx repository.Tx, cache *RequestCache, channelID, actorID uuid.UUID) (bool, error) {
	members, err := cache.Memberships(ctx, tx, channelID)
	if err != nil {
		return false, err
	}
	for _, m := range members {
		if m.Active && m.UserID != actorID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MessageService) sendBreadcrumbTx(ctx context.Context, tx repository.Tx, cache *RequestCache, channelID uuid.UUID, topic, content string, events *[]*event.Event, notices *[]queueNotice) error {
	_, ev, ns, err := s.sendOneTx(ctx, tx, cache, MessageDraft{
		SenderID:           s.cfg.SystemUserID,
		Recipient:          domain.ChannelRecipient(channelID),
		Topic:              topic,
		Content:            content,
		allowEmptyAudience: true,
	})
	if err != nil {
		return fmt.Errorf("breadcrumb: %w", err)
	}
	*events = append(*events, ev)
	*notices = append(*notices, ns...)
	return nil
}

// applyContentEdit re-analyzes the new content, re-resolves the audience and
// recomputes the mention-derived bits on the existing records, clearing
// push notifications that no longer apply.
func (s *MessageService) applyContentEdit(ctx context.Context, tx repository.Tx, cache *RequestCache, op *editOp, payload *event.UpdateMessagePayload, cleared map[uuid.UUID][]int64) error {
	msg := op.msg
	content := *op.input.Content

	analysis, err := s.analyzer.Analyze(ctx, content, msg.SenderID)
	if err != nil {
		return fmt.Errorf("analyze content: %w", err)
	}

	recipient := msg.Recipient
	if op.channelChanged {
		recipient = domain.ChannelRecipient(op.destChannelID())
	}
	aud, err := s.resolver.Resolve(ctx, tx, cache, ResolveInput{
		SenderID:   msg.SenderID,
		Recipient:  recipient,
		Topic:      op.destTopic(),
		Analysis:   analysis,
		AllowEmpty: true,
	})
	if err != nil {
		return err
	}

	records, err := tx.Deliveries().ListForMessages(ctx, []int64{msg.ID})
	if err != nil {
		return err
	}

	mentioned := NewUserSet(analysis.MentionedUserIDs...)
	groupMentioned := NewUserSet(analysis.GroupMentionedUserIDs...)
	alertWord := NewUserSet(analysis.AlertWordUserIDs...)

	for _, rec := range records {
		var bits domain.MessageFlag
		if rec.UserID != msg.SenderID {
			if mentioned.Contains(rec.UserID) {
				bits = bits.With(domain.FlagMentioned)
			}
			if groupMentioned.Contains(rec.UserID) {
				bits = bits.With(domain.FlagGroupMentioned | domain.FlagMentioned)
			}
			if aud.StreamWildcardEligibleIDs.Contains(rec.UserID) {
				bits = bits.With(domain.FlagStreamWildcardMentioned)
			}
			if aud.TopicWildcardEligibleIDs.Contains(rec.UserID) {
				bits = bits.With(domain.FlagTopicWildcardMentioned)
			}
			if alertWord.Contains(rec.UserID) {
				bits = bits.With(domain.FlagHasAlertWord)
			}
		}

		newFlags := (rec.Flags &^ domain.MentionMask) | bits

		// A pending push for a mention that no longer exists is stale.
		if newFlags.Has(domain.FlagActivePushNotification) &&
			!newFlags.Has(domain.FlagIsDirect) &&
			bits&domain.MentionMask == 0 {
			newFlags = newFlags.Without(domain.FlagActivePushNotification)
			cleared[rec.UserID] = append(cleared[rec.UserID], msg.ID)
		}

		if newFlags != rec.Flags {
			if err := tx.Deliveries().SetFlags(ctx, rec.UserID, msg.ID, newFlags); err != nil {
				return err
			}
		}
	}

	if err := tx.Messages().UpdateContent(ctx, msg.ID, content, analysis.Rendered, op.now); err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	prev := msg.Content
	err = tx.Messages().AppendEditHistory(ctx, []int64{msg.ID}, domain.EditHistoryEntry{
		UserID:      op.actor.ID,
		Timestamp:   op.now,
		PrevContent: &prev,
	})
	if err != nil {
		return err
	}

	payload.Content = &content
	payload.RenderedContent = &analysis.Rendered

	if op.updateRecipients == nil {
		holders := NewUserSet()
		for _, rec := range records {
			holders.Add(rec.UserID)
		}
		op.updateRecipients = aud.ActiveUserIDs.Union(holders)
	}
	return nil
}
