package access

import "strings"

// FromCSV converts the stored comma-separated capability column into a
// Principal. "ALL" (any case) grants full access. Unknown names are ignored
// rather than rejected; a row written by a newer build must not lock out
// older ones.
func FromCSV(id int64, csv string) Principal {
	p := Principal{ID: id}
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.EqualFold(part, "ALL") {
			p.FullAccess = true
			continue
		}
		if c, ok := ParseCapability(part); ok {
			p.Caps = p.Caps.Add(c)
		}
	}
	return p
}
