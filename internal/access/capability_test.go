package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_AddHasList(t *testing.T) {
	s := NewSet(CapBroadcast, CapAddContent)
	assert.True(t, s.Has(CapBroadcast))
	assert.True(t, s.Has(CapAddContent))
	assert.False(t, s.Has(CapManageAdmins))
	assert.Equal(t, []Capability{CapAddContent, CapBroadcast}, s.List())
}

func TestSet_RoundTripThroughString(t *testing.T) {
	s := NewSet(CapDeleteContent, CapViewContentStats, CapBroadcast)
	p := FromCSV(7, s.String())
	assert.Equal(t, s, p.Caps)
	assert.False(t, p.FullAccess)
}

func TestParseCapability_LegacyAliases(t *testing.T) {
	cases := map[string]Capability{
		"Add film":       CapAddContent,
		"Add film part":  CapAddContentPart,
		"Delete film":    CapDeleteContent,
		"Channels":       CapManageChannels,
		"User Statistic": CapViewUserStats,
		"Film Statistic": CapViewContentStats,
		"All write":      CapBroadcast,
		"Add admin":      CapManageAdmins,
		"Admins list":    CapViewAdminList,
	}
	for in, want := range cases {
		got, ok := ParseCapability(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseCapability("launch missiles")
	assert.False(t, ok)
}

func TestFromCSV(t *testing.T) {
	p := FromCSV(5, "Add film, Delete film, Channels")
	assert.True(t, p.Caps.Has(CapAddContent))
	assert.True(t, p.Caps.Has(CapDeleteContent))
	assert.True(t, p.Caps.Has(CapManageChannels))
	assert.False(t, p.Caps.Has(CapBroadcast))
	assert.False(t, p.FullAccess)
}

func TestFromCSV_AllGrantsFullAccess(t *testing.T) {
	p := FromCSV(5, "ALL")
	assert.True(t, p.FullAccess)
	for _, c := range AllCapabilities() {
		assert.True(t, p.Can(c), c.String())
	}
}

func TestFromCSV_UnknownNamesIgnored(t *testing.T) {
	p := FromCSV(5, "broadcast, bogus, , manage_channels")
	assert.Equal(t, NewSet(CapBroadcast, CapManageChannels), p.Caps)
}
