package access

import "strings"

// Capability is one discrete privileged action an operator may perform.
type Capability uint8

const (
	CapAddContent Capability = iota
	CapAddContentPart
	CapDeleteContent
	CapManageChannels
	CapViewUserStats
	CapViewContentStats
	CapBroadcast
	CapManageAdmins
	CapViewAdminList

	numCapabilities
)

var capNames = [numCapabilities]string{
	CapAddContent:       "add_content",
	CapAddContentPart:   "add_content_part",
	CapDeleteContent:    "delete_content",
	CapManageChannels:   "manage_channels",
	CapViewUserStats:    "view_user_stats",
	CapViewContentStats: "view_content_stats",
	CapBroadcast:        "broadcast",
	CapManageAdmins:     "manage_admins",
	CapViewAdminList:    "view_admin_list",
}

func (c Capability) String() string {
	if c < numCapabilities {
		return capNames[c]
	}
	return "unknown"
}

// AllCapabilities returns every defined capability in declaration order.
func AllCapabilities() []Capability {
	out := make([]Capability, 0, numCapabilities)
	for c := Capability(0); c < numCapabilities; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCapability resolves a stored capability name. Legacy aliases from
// older deployments (menu button labels) are accepted so existing rows keep
// decoding.
func ParseCapability(s string) (Capability, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add_content", "add film":
		return CapAddContent, true
	case "add_content_part", "add film part", "add parts":
		return CapAddContentPart, true
	case "delete_content", "delete film":
		return CapDeleteContent, true
	case "manage_channels", "channels":
		return CapManageChannels, true
	case "view_user_stats", "user statistic", "user_stat":
		return CapViewUserStats, true
	case "view_content_stats", "film statistic", "film_stat":
		return CapViewContentStats, true
	case "broadcast", "all write", "all_write":
		return CapBroadcast, true
	case "manage_admins", "add admin", "add_admin":
		return CapManageAdmins, true
	case "view_admin_list", "admins list", "admin_stat":
		return CapViewAdminList, true
	}
	return 0, false
}

// Set is a capability set, stored as a bitmask over the fixed enumeration.
type Set uint16

func NewSet(caps ...Capability) Set {
	var s Set
	for _, c := range caps {
		s = s.Add(c)
	}
	return s
}

func (s Set) Add(c Capability) Set {
	if c >= numCapabilities {
		return s
	}
	return s | 1<<c
}

func (s Set) Has(c Capability) bool {
	if c >= numCapabilities {
		return false
	}
	return s&(1<<c) != 0
}

func (s Set) IsEmpty() bool { return s == 0 }

// List returns the members in declaration order.
func (s Set) List() []Capability {
	var out []Capability
	for c := Capability(0); c < numCapabilities; c++ {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

func (s Set) String() string {
	caps := s.List()
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, c.String())
	}
	return strings.Join(names, ",")
}
