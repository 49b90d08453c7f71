package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vkoval/agora/internal/domain"
)

func sortUUIDs(ids []uuid.UUID) []uuid.UUID {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}

type userRepo struct {
	h handle
}

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	r.h.lock()
	defer r.h.unlock()
	r.h.data().users[user.ID] = *user
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.h.lock()
	defer r.h.unlock()
	if u, ok := r.h.data().users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (r *userRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.User, error) {
	r.h.lock()
	defer r.h.unlock()
	out := make(map[uuid.UUID]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := r.h.data().users[id]; ok {
			cp := u
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.h.lock()
	defer r.h.unlock()
	for _, u := range r.h.data().users {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.h.lock()
	defer r.h.unlock()
	for _, u := range r.h.data().users {
		if u.Username == username {
			cp := u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *userRepo) MutersOf(ctx context.Context, mutedID uuid.UUID) ([]uuid.UUID, error) {
	r.h.lock()
	defer r.h.unlock()
	var out []uuid.UUID
	for muter, muted := range r.h.data().mutes {
		if _, ok := muted[mutedID]; ok {
			out = append(out, muter)
		}
	}
	return sortUUIDs(out), nil
}

func (r *userRepo) Mute(ctx context.Context, userID, mutedID uuid.UUID) error {
	r.h.lock()
	defer r.h.unlock()
	d := r.h.data()
	if d.mutes[userID] == nil {
		d.mutes[userID] = make(map[uuid.UUID]time.Time)
	}
	if _, ok := d.mutes[userID][mutedID]; !ok {
		d.mutes[userID][mutedID] = time.Now()
	}
	return nil
}

func (r *userRepo) Unmute(ctx context.Context, userID, mutedID uuid.UUID) error {
	r.h.lock()
	defer r.h.unlock()
	delete(r.h.data().mutes[userID], mutedID)
	return nil
}

type channelRepo struct {
	h handle
}

func (r *channelRepo) Create(ctx context.Context, channel *domain.Channel) error {
	r.h.lock()
	defer r.h.unlock()
	r.h.data().channels[channel.ID] = *channel
	return nil
}

func (r *channelRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Channel, error) {
	r.h.lock()
	defer r.h.unlock()
	if ch, ok := r.h.data().channels[id]; ok {
		return &ch, nil
	}
	return nil, nil
}

type membershipRepo struct {
	h handle
}

func (r *membershipRepo) Upsert(ctx context.Context, member *domain.Membership) error {
	r.h.lock()
	defer r.h.unlock()
	d := r.h.data()
	if d.memberships[member.ChannelID] == nil {
		d.memberships[member.ChannelID] = make(map[uuid.UUID]domain.Membership)
	}
	d.memberships[member.ChannelID][member.UserID] = *member
	return nil
}

func (r *membershipRepo) Get(ctx context.Context, channelID, userID uuid.UUID) (*domain.Membership, error) {
	r.h.lock()
	defer r.h.unlock()
	if m, ok := r.h.data().memberships[channelID][userID]; ok {
		return &m, nil
	}
	return nil, nil
}

func (r *membershipRepo) ListByChannel(ctx context.Context, channelID uuid.UUID) ([]domain.Membership, error) {
	r.h.lock()
	defer r.h.unlock()
	members := r.h.data().memberships[channelID]
	out := make([]domain.Membership, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].UserID[:], out[j].UserID[:]) < 0
	})
	return out, nil
}

func (r *membershipRepo) EverSubscribedUserIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	r.h.lock()
	defer r.h.unlock()
	var out []uuid.UUID
	for id := range r.h.data().memberships[channelID] {
		out = append(out, id)
	}
	return sortUUIDs(out), nil
}

func (r *membershipRepo) SubscribedChannelIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	r.h.lock()
	defer r.h.unlock()
	var out []uuid.UUID
	for chID, members := range r.h.data().memberships {
		if m, ok := members[userID]; ok && m.Active {
			out = append(out, chID)
		}
	}
	return sortUUIDs(out), nil
}

type messageRepo struct {
	h handle
}

func (r *messageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.h.lock()
	defer r.h.unlock()
	d := r.h.data()
	msg.ID = d.nextID
	d.nextID++
	d.messages[msg.ID] = *msg
	return nil
}

func (r *messageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	r.h.lock()
	defer r.h.unlock()
	if msg, ok := r.h.data().messages[id]; ok {
		return &msg, nil
	}
	return nil, nil
}

func (r *messageRepo) GetByIDs(ctx context.Context, ids []int64) (map[int64]*domain.Message, error) {
	r.h.lock()
	defer r.h.unlock()
	out := make(map[int64]*domain.Message, len(ids))
	for _, id := range ids {
		if msg, ok := r.h.data().messages[id]; ok {
			cp := msg
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *messageRepo) IDsInTopic(ctx context.Context, channelID uuid.UUID, topic string, fromID int64) ([]int64, error) {
	r.h.lock()
	defer r.h.unlock()
	var out []int64
	for id, msg := range r.h.data().messages {
		if msg.Recipient.IsChannel() && msg.Recipient.ChannelID == channelID && msg.Topic == topic && id >= fromID {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (r *messageRepo) TopicHasMessages(ctx context.Context, channelID uuid.UUID, topic string) (bool, error) {
	r.h.lock()
	defer r.h.unlock()
	for _, msg := range r.h.data().messages {
		if msg.Recipient.IsChannel() && msg.Recipient.ChannelID == channelID && msg.Topic == topic {
			return true, nil
		}
	}
	return false, nil
}

func (r *messageRepo) TopicParticipants(ctx context.Context, channelID uuid.UUID, topic string) ([]uuid.UUID, error) {
	r.h.lock()
	defer r.h.unlock()
	d := r.h.data()
	seen := make(map[uuid.UUID]struct{})
	for id, msg := range d.messages {
		if !msg.Recipient.IsChannel() || msg.Recipient.ChannelID != channelID || msg.Topic != topic {
			continue
		}
		seen[msg.SenderID] = struct{}{}
		for _, reaction := range d.reactions[id] {
			seen[reaction.UserID] = struct{}{}
		}
	}
	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return sortUUIDs(out), nil
}

func (r *messageRepo) UpdateContent(ctx context.Context, id int64, content, rendered string, editedAt time.Time) error {
	r.h.lock()
	defer r.h.unlock()
	d := r.h.data()
	msg, ok := d.messages[id]
	if !ok {
		return nil
	}
	msg.Content = content
	msg.RenderedContent = rendered
	msg.LastEditedAt = &editedAt
	d.messages[id] = msg
	return nil
}

func (r *messageRepo) Retarget(ctx context.Context, ids []int64, channelID uuid.UUID, topic string, editedAt time.Time) error {
	r.h.lock()
	defer r.h.unlock()
	d := r.h.data()
	for _, id := range ids {
		msg, ok := d.messages[id]
		if !ok {
			continue
		}
		msg.Recipient = domain.ChannelRecipient(channelID)
		msg.Topic = topic
		msg.LastEditedAt = &editedAt
		d.messages[id] = msg
	}
	return nil
}

func (r *messageRepo) AppendEditHistory(ctx context.Context, ids []int64, entry domain.EditHistoryEntry) error {
	r.h.lock()
	defer r.h.unlock()
	d := r.h.data()
	for _, id := range ids {
		msg, ok := d.messages[id]
		if !ok {
			continue
		}
		msg.EditHistory = append(msg.EditHistory, entry)
		d.messages[id] = msg
	}
	return nil
}

type deliveryRepo struct {
	h handle
}

func (r *deliveryRepo) Get(ctx context.Context, userID uuid.UUID, messageID int64) (*domain.DeliveryRecord, error) {
	r.h.lock()
	defer r.h.unlock()
	if flags, ok := r.h.data().deliveries[userID][messageID]; ok {
		return &domain.DeliveryRecord{UserID: userID, MessageID: messageID, Flags: flags}, nil
	}
	return nil, nil
}

func (r *deliveryRepo) GetForUpdate(ctx context.Context, userID uuid.UUID, messageIDs []int64) ([]domain.DeliveryRecord, error) {
	r.h.lock()
	defer r.h.unlock()
	recs := r.h.data().deliveries[userID]
	var out []domain.DeliveryRecord
	for _, id := range messageIDs {
		if flags, ok := recs[id]; ok {
			out = append(out, domain.DeliveryRecord{UserID: userID, MessageID: id, Flags: flags})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	return out, nil
}

func (r *deliveryRepo) ListForMessages(ctx context.Context, messageIDs []int64) ([]domain.DeliveryRecord, error) {
	r.h.lock()
	defer r.h.unlock()
	wanted := make(map[int64]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}
	var out []domain.DeliveryRecord
	for userID, recs := range r.h.data().deliveries {
		for id, flags := range recs {
			if _, ok := wanted[id]; ok {
				out = append(out, domain.DeliveryRecord{UserID: userID, MessageID: id, Flags: flags})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MessageID != out[j].MessageID {
			return out[i].MessageID < out[j].MessageID
		}
		return bytes.Compare(out[i].UserID[:], out[j].UserID[:]) < 0
	})
	return out, nil
}

func (r *deliveryRepo) UsersWithRecords(ctx context.Context, messageIDs []int64) ([]uuid.UUID, error) {
	r.h.lock()
	defer r.h.unlock()
	wanted := make(map[int64]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = struct{}{}
	}
	var out []uuid.UUID
	for userID, recs := range r.h.data().deliveries {
		for id := range recs {
			if _, ok := wanted[id]; ok {
				out = append(out, userID)
				break
			}
		}
	}
	return sortUUIDs(out), nil
}

func (r *deliveryRepo) BulkCreate(ctx context.Context, records []domain.DeliveryRecord) error {
	r.h.lock()
	defer r.h.unlock()
	d := r.h.data()
	for _, rec := range records {
		if d.deliveries[rec.UserID] == nil {
			d.deliveries[rec.UserID] = make(map[int64]domain.MessageFlag)
		}
		if _, ok := d.deliveries[rec.UserID][rec.MessageID]; !ok {
			d.deliveries[rec.UserID][rec.MessageID] = rec.Flags
		}
	}
	return nil
}

func (r *deliveryRepo) AddFlag(ctx context.Context, userID uuid.UUID, messageIDs []int64, flag domain.MessageFlag) error {
	r.h.lock()
	defer r.h.unlock()
	recs := r.h.data().deliveries[userID]
	for _, id := range messageIDs {
		if flags, ok := recs[id]; ok {
			recs[id] = flags.With(flag)
		}
	}
	return nil
}

func (r *deliveryRepo) RemoveFlag(ctx context.Context, userID uuid.UUID, messageIDs []int64, flag domain.MessageFlag) error {
	r.h.lock()
	defer r.h.unlock()
	recs := r.h.data().deliveries[userID]
	for _, id := range messageIDs {
		if flags, ok := recs[id]; ok {
			recs[id] = flags.Without(flag)
		}
	}
	return nil
}

func (r *deliveryRepo) SetFlags(ctx context.Context, userID uuid.UUID, messageID int64, flags domain.MessageFlag) error {
	r.h.lock()
	defer r.h.unlock()
	recs := r.h.data().deliveries[userID]
	if _, ok := recs[messageID]; ok {
		recs[messageID] = flags
	}
	return nil
}

func (r *deliveryRepo) DeleteForUsers(ctx context.Context, userIDs []uuid.UUID, messageIDs []int64) error {
	r.h.lock()
	defer r.h.unlock()
	d := r.h.data()
	for _, userID := range userIDs {
		for _, id := range messageIDs {
			delete(d.deliveries[userID], id)
		}
	}
	return nil
}

func (r *deliveryRepo) LockUnreadBatch(ctx context.Context, userID uuid.UUID, limit int) ([]domain.DeliveryRecord, error) {
	r.h.lock()
	defer r.h.unlock()
	var out []domain.DeliveryRecord
	for id, flags := range r.h.data().deliveries[userID] {
		if !flags.Has(domain.FlagRead) {
			out = append(out, domain.DeliveryRecord{UserID: userID, MessageID: id, Flags: flags})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageID < out[j].MessageID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *deliveryRepo) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	r.h.lock()
	defer r.h.unlock()
	var count int64
	for _, flags := range r.h.data().deliveries[userID] {
		if !flags.Has(domain.FlagRead) {
			count++
		}
	}
	return count, nil
}

type topicPrefRepo struct {
	h handle
}

func (r *topicPrefRepo) Get(ctx context.Context, userID, channelID uuid.UUID, topic string) (*domain.TopicPreference, error) {
	r.h.lock()
	defer r.h.unlock()
	if pref, ok := r.h.data().prefs[prefKey{userID, channelID, topic}]; ok {
		return &pref, nil
	}
	return nil, nil
}

func (r *topicPrefRepo) ListForTopic(ctx context.Context, channelID uuid.UUID, topic string) ([]domain.TopicPreference, error) {
	r.h.lock()
	defer r.h.unlock()
	var out []domain.TopicPreference
	for k, pref := range r.h.data().prefs {
		if k.channelID == channelID && k.topic == topic {
			out = append(out, pref)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].UserID[:], out[j].UserID[:]) < 0
	})
	return out, nil
}

func (r *topicPrefRepo) Set(ctx context.Context, pref *domain.TopicPreference) error {
	r.h.lock()
	defer r.h.unlock()
	r.h.data().prefs[prefKey{pref.UserID, pref.ChannelID, pref.Topic}] = *pref
	return nil
}

func (r *topicPrefRepo) Delete(ctx context.Context, userID, channelID uuid.UUID, topic string) error {
	r.h.lock()
	defer r.h.unlock()
	delete(r.h.data().prefs, prefKey{userID, channelID, topic})
	return nil
}

type reactionRepo struct {
	h handle
}

func (r *reactionRepo) Add(ctx context.Context, reaction *domain.Reaction) error {
	r.h.lock()
	defer r.h.unlock()
	d := r.h.data()
	for _, existing := range d.reactions[reaction.MessageID] {
		if existing.UserID == reaction.UserID && existing.Emoji == reaction.Emoji {
			return nil
		}
	}
	d.reactions[reaction.MessageID] = append(d.reactions[reaction.MessageID], *reaction)
	return nil
}

func (r *reactionRepo) Remove(ctx context.Context, messageID int64, userID uuid.UUID, emoji string) error {
	r.h.lock()
	defer r.h.unlock()
	d := r.h.data()
	rs := d.reactions[messageID]
	for i, existing := range rs {
		if existing.UserID == userID && existing.Emoji == emoji {
			d.reactions[messageID] = append(rs[:i], rs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *reactionRepo) ListForMessage(ctx context.Context, messageID int64) ([]domain.Reaction, error) {
	r.h.lock()
	defer r.h.unlock()
	return append([]domain.Reaction(nil), r.h.data().reactions[messageID]...), nil
}
