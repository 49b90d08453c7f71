package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkoval/agora/internal/domain"
	"github.com/vkoval/agora/internal/event"
	"github.com/vkoval/agora/internal/repository"
)

const defaultMarkAllReadBatch = 1000

// FlagService is the flag mutation engine: batched, idempotent, race-safe
// toggling of delivery-record flags, including lazy backfill of historical
// records.
type FlagService struct {
	store     repository.Store
	sink      EventSink
	queue     NotificationQueue
	logger    *zap.Logger
	batchSize int
}

func NewFlagService(store repository.Store, sink EventSink, queue NotificationQueue, logger *zap.Logger, batchSize int) *FlagService {
	if batchSize <= 0 {
		batchSize = defaultMarkAllReadBatch
	}
	return &FlagService{
		store:     store,
		sink:      sink,
		queue:     queue,
		logger:    logger,
		batchSize: batchSize,
	}
}

type FlagUpdateResult struct {
	// MessageIDs whose record state actually changed, ascending.
	MessageIDs []int64 `json:"message_ids"`
	Count      int     `json:"count"`
}

// UpdateFlags toggles one flag on the user's records for the given message
// ids. The whole operation is one transaction; re-applying it is a no-op.
func (s *FlagService) UpdateFlags(ctx context.Context, userID uuid.UUID, messageIDs []int64, flagName string, add bool) (*FlagUpdateResult, error) {
	flag, ok := domain.FlagByName(flagName)
	if !ok {
		return nil, fmt.Errorf("%q: %w", flagName, ErrUnknownFlag)
	}
	if !flag.IsEditable() {
		return nil, fmt.Errorf("%q: %w", flagName, ErrFlagNotEditable)
	}

	ids := dedupeIDs(messageIDs)
	if len(ids) == 0 {
		return &FlagUpdateResult{MessageIDs: []int64{}}, nil
	}

	var (
		result  FlagUpdateResult
		ev      *event.Event
		cleared []int64
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		cache := NewRequestCache()

		user, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return ErrUserNotFound
		}

		msgs, err := tx.Messages().GetByIDs(ctx, ids)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if msgs[id] == nil {
				return fmt.Errorf("message %d: %w", id, ErrMessageNotFound)
			}
		}

		// No channel message may be unread for a non-subscriber: when
		// clearing read, silently drop ids in channels the user left.
		if flag == domain.FlagRead && !add {
			ids, err = s.dropUnsubscribed(ctx, tx, userID, ids, msgs)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				result = FlagUpdateResult{MessageIDs: []int64{}}
				return nil
			}
		}

		records, err := tx.Deliveries().GetForUpdate(ctx, userID, ids)
		if err != nil {
			return err
		}
		byID := make(map[int64]*domain.DeliveryRecord, len(records))
		for i := range records {
			byID[records[i].MessageID] = &records[i]
		}

		// Lazy backfill: a missing record for an accessible message reads
		// as {historical, read}; materialize it carrying the requested flag.
		var backfills []domain.DeliveryRecord
		var affected []int64
		for _, id := range ids {
			if byID[id] != nil {
				continue
			}
			ok, err := hasHistoryAccess(ctx, tx, cache, user, msgs[id])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("message %d: %w", id, ErrMessageNotFound)
			}
			flags := domain.FlagHistorical
			if add {
				flags = flags.With(flag)
			}
			if !(flag == domain.FlagRead && !add) {
				flags = flags.With(domain.FlagRead)
			}
			backfills = append(backfills, domain.DeliveryRecord{
				UserID:    userID,
				MessageID: id,
				Flags:     flags,
			})
			affected = append(affected, id)
		}

		// Already-matching rows are filtered out to bound write
		// amplification.
		var toggle []int64
		for _, id := range ids {
			rec := byID[id]
			if rec == nil {
				continue
			}
			if rec.Flags.Has(flag) != add {
				toggle = append(toggle, id)
			}
		}
		affected = append(affected, toggle...)
		sort.Slice(affected, func(i, j int) bool { return affected[i] < affected[j] })

		if len(backfills) > 0 {
			if err := tx.Deliveries().BulkCreate(ctx, backfills); err != nil {
				return err
			}
		}
		if len(toggle) > 0 {
			if add {
				err = tx.Deliveries().AddFlag(ctx, userID, toggle, flag)
			} else {
				err = tx.Deliveries().RemoveFlag(ctx, userID, toggle, flag)
			}
			if err != nil {
				return err
			}
		}

		// Reading a message retires its pending push notification.
		if flag == domain.FlagRead && add {
			for _, id := range toggle {
				if byID[id].Flags.Has(domain.FlagActivePushNotification) {
					cleared = append(cleared, id)
				}
			}
			if len(cleared) > 0 {
				if err := tx.Deliveries().RemoveFlag(ctx, userID, cleared, domain.FlagActivePushNotification); err != nil {
					return err
				}
			}
		}

		result = FlagUpdateResult{MessageIDs: affected, Count: len(affected)}
		if len(affected) > 0 {
			ev, err = event.NewUpdateMessageFlags([]uuid.UUID{userID}, event.FlagsPayload{
				UserID:     userID,
				Flag:       flagName,
				Op:         flagOp(add),
				MessageIDs: affected,
				Count:      len(affected),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if ev != nil {
		s.sink.Publish(ctx, ev)
	}
	if len(cleared) > 0 {
		if err := s.queue.ClearPush(ctx, userID, cleared); err != nil {
			s.logger.Warn("clear push notifications", zap.Error(err), zap.String("user_id", userID.String()))
		}
	}
	return &result, nil
}

// MarkAllReadResult reports progress of a budgeted bulk read. Complete=false
// is not a failure: it signals "call again".
type MarkAllReadResult struct {
	Count    int  `json:"count"`
	Complete bool `json:"complete"`
}

// MarkAllRead marks the user's unread records read in fixed-size batches,
// each under its own transaction and row locks, until done or the wall-clock
// budget runs out. Safe to retry: already-read rows are skipped.
func (s *FlagService) MarkAllRead(ctx context.Context, userID uuid.UUID, budget time.Duration) (*MarkAllReadResult, error) {
	var deadline time.Time
	if budget > 0 {
		deadline = time.Now().Add(budget)
	}

	result := &MarkAllReadResult{}
	for {
		var (
			batch   []int64
			cleared []int64
			ev      *event.Event
		)
		err := s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			records, err := tx.Deliveries().LockUnreadBatch(ctx, userID, s.batchSize)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				return nil
			}
			batch = make([]int64, 0, len(records))
			for _, rec := range records {
				batch = append(batch, rec.MessageID)
				if rec.Flags.Has(domain.FlagActivePushNotification) {
					cleared = append(cleared, rec.MessageID)
				}
			}
			if err := tx.Deliveries().AddFlag(ctx, userID, batch, domain.FlagRead); err != nil {
				return err
			}
			if len(cleared) > 0 {
				if err := tx.Deliveries().RemoveFlag(ctx, userID, cleared, domain.FlagActivePushNotification); err != nil {
					return err
				}
			}
			ev, err = event.NewUpdateMessageFlags([]uuid.UUID{userID}, event.FlagsPayload{
				UserID:     userID,
				Flag:       domain.FlagRead.Name(),
				Op:         "add",
				MessageIDs: batch,
				Count:      len(batch),
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(batch) == 0 {
			result.Complete = true
			return result, nil
		}

		result.Count += len(batch)
		s.sink.Publish(ctx, ev)
		if len(cleared) > 0 {
			if err := s.queue.ClearPush(ctx, userID, cleared); err != nil {
				s.logger.Warn("clear push notifications", zap.Error(err), zap.String("user_id", userID.String()))
			}
		}

		if len(batch) < s.batchSize {
			result.Complete = true
			return result, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return result, nil
		}
	}
}

func (s *FlagService) dropUnsubscribed(ctx context.Context, tx repository.Tx, userID uuid.UUID, ids []int64, msgs map[int64]*domain.Message) ([]int64, error) {
	channelIDs, err := tx.Memberships().SubscribedChannelIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	subscribed := make(map[uuid.UUID]struct{}, len(channelIDs))
	for _, id := range channelIDs {
		subscribed[id] = struct{}{}
	}

	kept := ids[:0]
	for _, id := range ids {
		msg := msgs[id]
		if msg.Recipient.IsChannel() {
			if _, ok := subscribed[msg.Recipient.ChannelID]; !ok {
				continue
			}
		}
		kept = append(kept, id)
	}
	return kept, nil
}

func flagOp(add bool) string {
	if add {
		return "add"
	}
	return "remove"
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
