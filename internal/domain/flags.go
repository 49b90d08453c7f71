package domain

// MessageFlag is one bit of per-recipient delivery state on a DeliveryRecord.
type MessageFlag uint32

const (
	FlagRead MessageFlag = 1 << iota
	FlagStarred
	FlagMentioned
	FlagStreamWildcardMentioned
	FlagTopicWildcardMentioned
	FlagGroupMentioned
	FlagHasAlertWord
	FlagHistorical
	FlagActivePushNotification
	FlagIsDirect
)

// flagNames is the wire vocabulary; order matches the bit positions above.
var flagNames = map[MessageFlag]string{
	FlagRead:                    "read",
	FlagStarred:                 "starred",
	FlagMentioned:               "mentioned",
	FlagStreamWildcardMentioned: "stream_wildcard_mentioned",
	FlagTopicWildcardMentioned:  "topic_wildcard_mentioned",
	FlagGroupMentioned:          "group_mentioned",
	FlagHasAlertWord:            "has_alert_word",
	FlagHistorical:              "historical",
	FlagActivePushNotification:  "active_push_notification",
	FlagIsDirect:                "is_direct",
}

var flagsByName = func() map[string]MessageFlag {
	m := make(map[string]MessageFlag, len(flagNames))
	for f, name := range flagNames {
		m[name] = f
	}
	return m
}()

// MentionMask covers every bit the send pipeline derives from content analysis.
// Content edits recompute exactly these bits and leave the rest untouched.
const MentionMask = FlagMentioned | FlagStreamWildcardMentioned |
	FlagTopicWildcardMentioned | FlagGroupMentioned | FlagHasAlertWord

// editableFlags is the partition settable through the public flag API.
// The rest are computed by the server and rejected with a NotEditable error.
const editableFlags = FlagRead | FlagStarred | FlagActivePushNotification

// FlagByName resolves a wire name to its bit. ok is false for unknown names.
func FlagByName(name string) (MessageFlag, bool) {
	f, ok := flagsByName[name]
	return f, ok
}

// Name returns the wire name of a single flag bit.
func (f MessageFlag) Name() string {
	return flagNames[f]
}

// IsEditable reports whether the flag may be toggled by clients.
func (f MessageFlag) IsEditable() bool {
	return f&editableFlags == f && f != 0
}

func (f MessageFlag) Has(bit MessageFlag) bool {
	return f&bit != 0
}

func (f MessageFlag) With(bit MessageFlag) MessageFlag {
	return f | bit
}

func (f MessageFlag) Without(bit MessageFlag) MessageFlag {
	return f &^ bit
}

// Names expands a flag word into its wire names, in bit order.
func (f MessageFlag) Names() []string {
	names := []string{}
	for bit := MessageFlag(1); bit <= FlagIsDirect; bit <<= 1 {
		if f.Has(bit) {
			names = append(names, flagNames[bit])
		}
	}
	return names
}
