package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagByName(t *testing.T) {
	f, ok := FlagByName("read")
	require.True(t, ok)
	assert.Equal(t, FlagRead, f)

	f, ok = FlagByName("topic_wildcard_mentioned")
	require.True(t, ok)
	assert.Equal(t, FlagTopicWildcardMentioned, f)

	_, ok = FlagByName("collapsed")
	assert.False(t, ok)

	_, ok = FlagByName("")
	assert.False(t, ok)
}

func TestFlagEditability(t *testing.T) {
	editable := []MessageFlag{FlagRead, FlagStarred, FlagActivePushNotification}
	for _, f := range editable {
		assert.True(t, f.IsEditable(), f.Name())
	}

	computed := []MessageFlag{
		FlagMentioned, FlagStreamWildcardMentioned, FlagTopicWildcardMentioned,
		FlagGroupMentioned, FlagHasAlertWord, FlagHistorical, FlagIsDirect,
	}
	for _, f := range computed {
		assert.False(t, f.IsEditable(), f.Name())
	}
}

func TestFlagWordOps(t *testing.T) {
	var f MessageFlag
	f = f.With(FlagRead).With(FlagMentioned)
	assert.True(t, f.Has(FlagRead))
	assert.True(t, f.Has(FlagMentioned))
	assert.False(t, f.Has(FlagStarred))

	f = f.Without(FlagRead)
	assert.False(t, f.Has(FlagRead))
	assert.True(t, f.Has(FlagMentioned))

	// Without on an absent bit is a no-op.
	assert.Equal(t, f, f.Without(FlagStarred))
}

func TestFlagNames(t *testing.T) {
	f := FlagRead | FlagMentioned | FlagIsDirect
	assert.Equal(t, []string{"read", "mentioned", "is_direct"}, f.Names())

	assert.Equal(t, []string{}, MessageFlag(0).Names())
}

func TestMentionMaskCoversAnalysisBits(t *testing.T) {
	assert.True(t, MentionMask.Has(FlagMentioned))
	assert.True(t, MentionMask.Has(FlagGroupMentioned))
	assert.True(t, MentionMask.Has(FlagStreamWildcardMentioned))
	assert.True(t, MentionMask.Has(FlagTopicWildcardMentioned))
	assert.True(t, MentionMask.Has(FlagHasAlertWord))

	assert.False(t, MentionMask.Has(FlagRead))
	assert.False(t, MentionMask.Has(FlagActivePushNotification))
	assert.False(t, MentionMask.Has(FlagIsDirect))
}
