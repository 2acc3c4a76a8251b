package telegram

import (
	"sync"
)

// step identifies where a multi-message dialog currently is. One dialog per
// chat; starting a new one replaces the old.
type step int

const (
	stepNone step = iota

	stepSearchCode

	stepAddEntryCode
	stepAddEntryTitle
	stepAddEntryMedia

	stepAddPartCode
	stepAddPartName
	stepAddPartVideo

	stepDeleteTarget

	stepChannelAdd
	stepChannelDelete

	stepAdminID
	stepAdminCaps
	stepAdminDelete

	stepBroadcastContent
)

// dialog is the mutable per-chat conversation state. data accumulates the
// answers collected so far, keyed by field name.
type dialog struct {
	step step
	data map[string]string
}

func (d *dialog) set(key, val string) {
	if d.data == nil {
		d.data = map[string]string{}
	}
	d.data[key] = val
}

func (d *dialog) get(key string) string { return d.data[key] }

type dialogs struct {
	mu sync.Mutex
	m  map[int64]*dialog
}

func newDialogs() *dialogs {
	return &dialogs{m: map[int64]*dialog{}}
}

// begin starts (or restarts) a dialog for the chat at the given step.
func (ds *dialogs) begin(chatID int64, s step) *dialog {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	d := &dialog{step: s, data: map[string]string{}}
	ds.m[chatID] = d
	return d
}

// active returns the chat's dialog, or nil when none is in progress.
func (ds *dialogs) active(chatID int64) *dialog {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.m[chatID]
}

func (ds *dialogs) clear(chatID int64) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	delete(ds.m, chatID)
}
