package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkoval/agora/internal/domain"
	"github.com/vkoval/agora/internal/event"
	"github.com/vkoval/agora/internal/repository/memory"
)

// stubSink records published events in order.
type stubSink struct {
	mu     sync.Mutex
	events []*event.Event
}

func (s *stubSink) Publish(_ context.Context, ev *event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *stubSink) byType(t event.Type) []*event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*event.Event
	for _, ev := range s.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type queuedNotification struct {
	userID    uuid.UUID
	messageID int64
	trigger   string
}

// stubQueue records enqueued notifications.
type stubQueue struct {
	mu     sync.Mutex
	pushes []queuedNotification
	emails []queuedNotification
	clears map[uuid.UUID][]int64
}

func newStubQueue() *stubQueue {
	return &stubQueue{clears: make(map[uuid.UUID][]int64)}
}

func (q *stubQueue) EnqueuePush(_ context.Context, userID uuid.UUID, messageID int64, trigger string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushes = append(q.pushes, queuedNotification{userID, messageID, trigger})
	return nil
}

func (q *stubQueue) EnqueueEmail(_ context.Context, userID uuid.UUID, messageID int64, trigger string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.emails = append(q.emails, queuedNotification{userID, messageID, trigger})
	return nil
}

func (q *stubQueue) ClearPush(_ context.Context, userID uuid.UUID, messageIDs []int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clears[userID] = append(q.clears[userID], messageIDs...)
	return nil
}

func (q *stubQueue) pushTriggers() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.pushes))
	for i, n := range q.pushes {
		out[i] = n.trigger
	}
	return out
}

// stubAnalyzer returns a fixed analysis, passing content through unrendered.
type stubAnalyzer struct {
	result AnalyzerResult
}

func (a *stubAnalyzer) Analyze(_ context.Context, content string, _ uuid.UUID) (*AnalyzerResult, error) {
	r := a.result
	if r.Rendered == "" {
		r.Rendered = content
	}
	return &r, nil
}

// fixture bundles everything a service test needs over the in-memory store.
type fixture struct {
	store    *memory.Store
	sink     *stubSink
	queue    *stubQueue
	analyzer *stubAnalyzer
	messages *MessageService
	flags    *FlagService
	cfg      MessageConfig
}

func newFixture(cfg MessageConfig) *fixture {
	store := memory.NewStore()
	sink := &stubSink{}
	queue := newStubQueue()
	analyzer := &stubAnalyzer{}
	logger := zap.NewNop()

	resolver := NewAudienceResolver(logger)
	return &fixture{
		store:    store,
		sink:     sink,
		queue:    queue,
		analyzer: analyzer,
		messages: NewMessageService(store, resolver, analyzer, sink, queue, logger, cfg),
		flags:    NewFlagService(store, sink, queue, logger, 0),
		cfg:      cfg,
	}
}

func (f *fixture) user(username string, role domain.Role, mutate ...func(*domain.User)) *domain.User {
	now := time.Now()
	u := &domain.User{
		ID:                    uuid.New(),
		Email:                 username + "@example.com",
		Username:              username,
		DisplayName:           username,
		PasswordHash:          "x",
		Role:                  role,
		StreamPushDefault:     true,
		StreamEmailDefault:    true,
		WildcardNotifyDefault: true,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	for _, m := range mutate {
		m(u)
	}
	if err := f.store.Users().Create(context.Background(), u); err != nil {
		panic(err)
	}
	return u
}

func (f *fixture) channel(name string, creator uuid.UUID, mutate ...func(*domain.Channel)) *domain.Channel {
	ch := &domain.Channel{
		ID:                         uuid.New(),
		Name:                       name,
		HistoryPublicToSubscribers: true,
		CreatedBy:                  creator,
		CreatedAt:                  time.Now(),
	}
	for _, m := range mutate {
		m(ch)
	}
	if err := f.store.Channels().Create(context.Background(), ch); err != nil {
		panic(err)
	}
	return ch
}

func (f *fixture) subscribe(channelID, userID uuid.UUID, mutate ...func(*domain.Membership)) {
	m := &domain.Membership{
		ChannelID: channelID,
		UserID:    userID,
		Active:    true,
		JoinedAt:  time.Now(),
	}
	for _, fn := range mutate {
		fn(m)
	}
	if err := f.store.Memberships().Upsert(context.Background(), m); err != nil {
		panic(err)
	}
}

func (f *fixture) send(sender uuid.UUID, channelID uuid.UUID, topic, content string) *domain.Message {
	sent, err := f.messages.Send(context.Background(), []MessageDraft{{
		SenderID:  sender,
		Recipient: domain.ChannelRecipient(channelID),
		Topic:     topic,
		Content:   content,
	}})
	if err != nil {
		panic(err)
	}
	return sent[0].Message
}

func (f *fixture) record(userID uuid.UUID, messageID int64) *domain.DeliveryRecord {
	rec, err := f.store.Deliveries().Get(context.Background(), userID, messageID)
	if err != nil {
		panic(err)
	}
	return rec
}

func boolPtr(b bool) *bool          { return &b }
func strPtr(s string) *string       { return &s }
func idPtr(id uuid.UUID) *uuid.UUID { return &id }
