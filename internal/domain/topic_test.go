package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeTopicPolicies(t *testing.T) {
	tests := []struct {
		name            string
		source          TopicPolicy
		destination     TopicPolicy
		destHadMessages bool
		want            TopicPolicy
	}{
		{"followed source wins", PolicyFollowed, PolicyMuted, true, PolicyFollowed},
		{"followed destination wins", PolicyMuted, PolicyFollowed, true, PolicyFollowed},
		{"empty destination keeps source", PolicyMuted, PolicyUnmuted, false, PolicyMuted},
		{"empty destination keeps inherit source", PolicyInherit, PolicyMuted, false, PolicyInherit},
		{"more visible destination wins", PolicyMuted, PolicyUnmuted, true, PolicyUnmuted},
		{"more visible source wins", PolicyUnmuted, PolicyMuted, true, PolicyUnmuted},
		{"unmuted source lands on active destination", PolicyUnmuted, PolicyInherit, true, PolicyUnmuted},
		{"tie keeps source", PolicyMuted, PolicyMuted, true, PolicyMuted},
		{"inherit source beats muted destination", PolicyInherit, PolicyMuted, true, PolicyInherit},
		{"unmuted destination beats inherit source", PolicyInherit, PolicyUnmuted, true, PolicyUnmuted},
		{"both inherit", PolicyInherit, PolicyInherit, true, PolicyInherit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeTopicPolicies(tt.source, tt.destination, tt.destHadMessages)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsTopicResolved(t *testing.T) {
	assert.True(t, IsTopicResolved(ResolvedTopicPrefix+"launch plan"))
	assert.False(t, IsTopicResolved("launch plan"))
	assert.False(t, IsTopicResolved("launch "+ResolvedTopicPrefix+"plan"))
}

func TestIsResolveToggle(t *testing.T) {
	assert.True(t, IsResolveToggle("launch plan", ResolvedTopicPrefix+"launch plan"))
	assert.True(t, IsResolveToggle(ResolvedTopicPrefix+"launch plan", "launch plan"))

	assert.False(t, IsResolveToggle("launch plan", "launch plan"))
	assert.False(t, IsResolveToggle("launch plan", "other topic"))
	assert.False(t, IsResolveToggle("launch plan", ResolvedTopicPrefix+"other topic"))
}

func TestParsePropagateMode(t *testing.T) {
	m, ok := ParsePropagateMode("")
	assert.True(t, ok)
	assert.Equal(t, PropagateOne, m)

	for _, s := range []string{"change_one", "change_later", "change_all"} {
		m, ok := ParsePropagateMode(s)
		assert.True(t, ok)
		assert.Equal(t, PropagateMode(s), m)
	}

	_, ok = ParsePropagateMode("change_some")
	assert.False(t, ok)
}

func TestHistoryVisibleTo(t *testing.T) {
	member := &User{Role: RoleMember}
	guest := &User{Role: RoleGuest}

	webPublic := &Channel{WebPublic: true}
	assert.True(t, webPublic.HistoryVisibleTo(member, false))
	assert.True(t, webPublic.HistoryVisibleTo(guest, false))

	open := &Channel{HistoryPublicToSubscribers: true}
	assert.True(t, open.HistoryVisibleTo(member, false))
	assert.False(t, open.HistoryVisibleTo(guest, false))
	assert.True(t, open.HistoryVisibleTo(guest, true))

	invite := &Channel{InviteOnly: true, HistoryPublicToSubscribers: true}
	assert.False(t, invite.HistoryVisibleTo(member, false))
	assert.True(t, invite.HistoryVisibleTo(member, true))

	protected := &Channel{InviteOnly: true, HistoryPublicToSubscribers: false}
	assert.False(t, protected.HistoryVisibleTo(member, true))
}
