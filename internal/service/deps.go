package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/vkoval/agora/internal/event"
)

// EventSink delivers fan-out events to connected clients. Services publish
// only after the owning transaction has committed.
type EventSink interface {
	Publish(ctx context.Context, ev *event.Event)
}

// NotificationQueue feeds the push/email delivery workers. Enqueued
// opportunistically whenever a mutation could change notifiability.
type NotificationQueue interface {
	EnqueuePush(ctx context.Context, userID uuid.UUID, messageID int64, trigger string) error
	EnqueueEmail(ctx context.Context, userID uuid.UUID, messageID int64, trigger string) error
	ClearPush(ctx context.Context, userID uuid.UUID, messageIDs []int64) error
}

// AnalyzerResult is what the content analyzer extracted from one message.
// The "might have" flags gate the expensive wildcard-eligibility lookups;
// most messages carry no wildcard syntax.
type AnalyzerResult struct {
	Rendered                string
	MentionedUserIDs        []uuid.UUID
	GroupMentionedUserIDs   []uuid.UUID
	AlertWordUserIDs        []uuid.UUID
	MightHaveStreamWildcard bool
	MightHaveTopicWildcard  bool
}

// ContentAnalyzer renders message content and extracts mentions. It is an
// external collaborator; the core treats it as opaque and possibly expensive.
type ContentAnalyzer interface {
	Analyze(ctx context.Context, content string, senderID uuid.UUID) (*AnalyzerResult, error)
}

// PlainAnalyzer is the stand-in wired when no real analyzer is deployed: it
// passes content through unrendered and reports no mentions.
type PlainAnalyzer struct{}

func (PlainAnalyzer) Analyze(_ context.Context, content string, _ uuid.UUID) (*AnalyzerResult, error) {
	return &AnalyzerResult{Rendered: content}, nil
}
