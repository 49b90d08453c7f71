package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vkoval/agora/internal/domain"
	"github.com/vkoval/agora/internal/repository"
)

// Audience is the resolved recipient structure for one message (or one
// re-analysis of an edited message).
type Audience struct {
	// ActiveUserIDs is everyone the message addresses: the direct-message
	// parties, or the channel's currently subscribed, non-deactivated users.
	ActiveUserIDs UserSet
	// EligibleForRecordIDs is the subset of active users that get a
	// DeliveryRecord; webhook-only bots are excluded.
	EligibleForRecordIDs UserSet
	PushEligibleIDs      UserSet
	EmailEligibleIDs     UserSet
	// StreamWildcardEligibleIDs / TopicWildcardEligibleIDs are the users
	// whose records carry the respective wildcard flag. Populated only when
	// the analyzer reported the message might contain wildcard syntax.
	StreamWildcardEligibleIDs UserSet
	TopicWildcardEligibleIDs  UserSet
	// WildcardNotifyIDs is who opted into being notified for wildcards.
	WildcardNotifyIDs   UserSet
	TopicParticipantIDs UserSet
	// MutedSenderUserIDs muted the sender; their copy is auto-marked read.
	MutedSenderUserIDs UserSet
}

// ResolveInput names a message by destination rather than by stored row, so
// content edits can re-resolve without a draft.
type ResolveInput struct {
	SenderID  uuid.UUID
	Recipient domain.Recipient
	Topic     string
	Analysis  *AnalyzerResult
	// AllowEmpty permits an empty active set; only internal system sends
	// may do this.
	AllowEmpty bool
}

// AudienceResolver computes who receives records, notifications and live
// updates for a message. It reads the membership rows once and filters the
// notification matrix in memory, keeping resolution O(subscribers).
type AudienceResolver struct {
	logger *zap.Logger
}

func NewAudienceResolver(logger *zap.Logger) *AudienceResolver {
	return &AudienceResolver{logger: logger}
}

func (r *AudienceResolver) Resolve(ctx context.Context, tx repository.Tx, cache *RequestCache, in ResolveInput) (*Audience, error) {
	var (
		aud *Audience
		err error
	)
	if in.Recipient.IsChannel() {
		aud, err = r.resolveChannel(ctx, tx, cache, in)
	} else {
		aud, err = r.resolveDirect(ctx, tx, cache, in)
	}
	if err != nil {
		return nil, err
	}

	if len(aud.ActiveUserIDs) == 0 && !in.AllowEmpty {
		return nil, ErrEmptyAudience
	}

	muters, err := cache.MutersOf(ctx, tx, in.SenderID)
	if err != nil {
		return nil, fmt.Errorf("muters of sender: %w", err)
	}
	aud.MutedSenderUserIDs = NewUserSet(muters...).Intersect(aud.ActiveUserIDs)
	return aud, nil
}

func (r *AudienceResolver) resolveDirect(ctx context.Context, tx repository.Tx, cache *RequestCache, in ResolveInput) (*Audience, error) {
	if len(in.Recipient.UserIDs) == 0 {
		return nil, ErrEmptyRecipientList
	}

	// A self-message is a de-duplicated one-element set.
	ids := NewUserSet(in.Recipient.UserIDs...).Sorted()

	users, err := cache.Users(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	aud := &Audience{
		ActiveUserIDs:        NewUserSet(),
		EligibleForRecordIDs: NewUserSet(),
		PushEligibleIDs:      NewUserSet(),
		EmailEligibleIDs:     NewUserSet(),
	}
	for _, id := range ids {
		u, ok := users[id]
		if !ok {
			return nil, fmt.Errorf("recipient %s: %w", id, ErrUserNotFound)
		}
		if u.Deactivated {
			continue
		}
		aud.ActiveUserIDs.Add(id)
		if u.IsWebhookBot {
			continue
		}
		aud.EligibleForRecordIDs.Add(id)
		if id != in.SenderID {
			aud.PushEligibleIDs.Add(id)
			aud.EmailEligibleIDs.Add(id)
		}
	}
	return aud, nil
}

func (r *AudienceResolver) resolveChannel(ctx context.Context, tx repository.Tx, cache *RequestCache, in ResolveInput) (*Audience, error) {
	channel, err := cache.Channel(ctx, tx, in.Recipient.ChannelID)
	if err != nil {
		return nil, err
	}
	if channel == nil {
		return nil, ErrChannelNotFound
	}

	memberships, err := cache.Memberships(ctx, tx, channel.ID)
	if err != nil {
		return nil, fmt.Errorf("memberships of %s: %w", channel.ID, err)
	}

	active := make([]domain.Membership, 0, len(memberships))
	memberIDs := make([]uuid.UUID, 0, len(memberships))
	for _, m := range memberships {
		if m.Active {
			active = append(active, m)
			memberIDs = append(memberIDs, m.UserID)
		}
	}

	users, err := cache.Users(ctx, tx, memberIDs)
	if err != nil {
		return nil, err
	}

	prefs, err := cache.TopicPreferences(ctx, tx, channel.ID, in.Topic)
	if err != nil {
		return nil, fmt.Errorf("topic preferences: %w", err)
	}
	policyByUser := make(map[uuid.UUID]domain.TopicPolicy, len(prefs))
	for _, p := range prefs {
		policyByUser[p.UserID] = p.Policy
	}

	aud := &Audience{
		ActiveUserIDs:        NewUserSet(),
		EligibleForRecordIDs: NewUserSet(),
		PushEligibleIDs:      NewUserSet(),
		EmailEligibleIDs:     NewUserSet(),
		WildcardNotifyIDs:    NewUserSet(),
	}

	for _, m := range active {
		u, ok := users[m.UserID]
		if !ok || u.Deactivated {
			continue
		}
		aud.ActiveUserIDs.Add(m.UserID)
		if u.IsWebhookBot {
			continue
		}
		aud.EligibleForRecordIDs.Add(m.UserID)

		policy := policyByUser[m.UserID]
		if m.UserID != in.SenderID {
			if notifiable(policy, m.Muted, override(m.PushOverride, u.StreamPushDefault)) {
				aud.PushEligibleIDs.Add(m.UserID)
			}
			if notifiable(policy, m.Muted, override(m.EmailOverride, u.StreamEmailDefault)) {
				aud.EmailEligibleIDs.Add(m.UserID)
			}
		}
		if override(m.WildcardOverride, u.WildcardNotifyDefault) {
			aud.WildcardNotifyIDs.Add(m.UserID)
		}
	}

	if err := r.resolveWildcards(ctx, tx, cache, channel.ID, in, aud); err != nil {
		return nil, err
	}
	return aud, nil
}

// notifiable applies the per-topic / per-channel / per-user precedence: a
// followed topic notifies even in a muted channel, a muted topic never does.
func notifiable(policy domain.TopicPolicy, channelMuted, userDefault bool) bool {
	switch policy {
	case domain.PolicyMuted:
		return false
	case domain.PolicyFollowed:
		return true
	case domain.PolicyUnmuted:
		return userDefault
	}
	if channelMuted {
		return false
	}
	return userDefault
}

func override(per *bool, fallback bool) bool {
	if per != nil {
		return *per
	}
	return fallback
}

// resolveWildcards fills the wildcard sets, but only when the analyzer says
// the message might contain wildcard syntax: the topic-participant lookup is
// the most expensive sub-query in the pipeline.
func (r *AudienceResolver) resolveWildcards(ctx context.Context, tx repository.Tx, cache *RequestCache, channelID uuid.UUID, in ResolveInput, aud *Audience) error {
	if in.Analysis == nil {
		return nil
	}
	if in.Analysis.MightHaveStreamWildcard {
		set := NewUserSet(aud.EligibleForRecordIDs.Sorted()...)
		set.Remove(in.SenderID)
		aud.StreamWildcardEligibleIDs = set
	}
	if in.Analysis.MightHaveTopicWildcard {
		participants, err := cache.TopicParticipants(ctx, tx, channelID, in.Topic)
		if err != nil {
			return fmt.Errorf("topic participants: %w", err)
		}
		aud.TopicParticipantIDs = NewUserSet(participants...)
		set := aud.TopicParticipantIDs.Intersect(aud.EligibleForRecordIDs)
		set.Remove(in.SenderID)
		aud.TopicWildcardEligibleIDs = set
	}
	return nil
}
