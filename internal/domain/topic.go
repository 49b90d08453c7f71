package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TopicPolicy is a user's visibility policy for one (channel, topic) pair.
// The zero value means "no explicit policy" and is never stored as a row.
type TopicPolicy int

const (
	PolicyInherit TopicPolicy = iota
	PolicyMuted
	PolicyUnmuted
	PolicyFollowed
)

func (p TopicPolicy) String() string {
	switch p {
	case PolicyMuted:
		return "muted"
	case PolicyUnmuted:
		return "unmuted"
	case PolicyFollowed:
		return "followed"
	default:
		return "inherit"
	}
}

// visibilityRank orders policies from least to most visible.
func (p TopicPolicy) visibilityRank() int {
	switch p {
	case PolicyMuted:
		return 0
	case PolicyInherit:
		return 1
	case PolicyUnmuted:
		return 2
	case PolicyFollowed:
		return 3
	}
	return 1
}

// MergeTopicPolicies combines the policies a user held on the source and
// destination topics of a full-topic move. Followed beats any other value.
// Otherwise the source policy is kept when the destination topic had no
// messages before the move; else the more-visible policy wins, with ties
// keeping the source. The asymmetry is deliberate and user-visible; do not
// "simplify" it.
func MergeTopicPolicies(source, destination TopicPolicy, destinationHadMessages bool) TopicPolicy {
	if source == PolicyFollowed || destination == PolicyFollowed {
		return PolicyFollowed
	}
	if !destinationHadMessages {
		return source
	}
	if destination.visibilityRank() > source.visibilityRank() {
		return destination
	}
	return source
}

// TopicPreference is one stored (user, channel, topic) policy row.
type TopicPreference struct {
	UserID    uuid.UUID   `json:"user_id"`
	ChannelID uuid.UUID   `json:"channel_id"`
	Topic     string      `json:"topic"`
	Policy    TopicPolicy `json:"policy"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ResolvedTopicPrefix marks a topic as resolved when prepended to its name.
const ResolvedTopicPrefix = "✔ "

func IsTopicResolved(topic string) bool {
	return strings.HasPrefix(topic, ResolvedTopicPrefix)
}

// IsResolveToggle reports whether two topic names differ only by the
// resolved prefix, in either direction.
func IsResolveToggle(oldTopic, newTopic string) bool {
	if oldTopic == newTopic {
		return false
	}
	return ResolvedTopicPrefix+oldTopic == newTopic || oldTopic == ResolvedTopicPrefix+newTopic
}
