package telegram

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"kinobot/internal/access"
	"kinobot/internal/broadcast"
	"kinobot/internal/gate"
	"kinobot/internal/storage"
	"kinobot/pkg/logx"
)

// handlerTimeout bounds the storage and API work done for one update. The
// broadcast itself runs detached and is not subject to it.
const handlerTimeout = 30 * time.Second

// Handlers wires every bot route to the core services.
type Handlers struct {
	bot     *tele.Bot
	store   *storage.Store
	auth    *access.Authority
	gate    *gate.Evaluator
	engine  *broadcast.Engine
	dialogs *dialogs
	contact string
	log     logx.Logger
}

func NewHandlers(a *Adapter, store *storage.Store, auth *access.Authority, g *gate.Evaluator, engine *broadcast.Engine, contactLink string, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{
		bot:     a.Bot(),
		store:   store,
		auth:    auth,
		gate:    g,
		engine:  engine,
		dialogs: newDialogs(),
		contact: contactLink,
		log:     log,
	}
}

// Register attaches all routes. Call once before the poller starts.
func (h *Handlers) Register() {
	b := h.bot
	b.Use(h.recoverMW, h.logMW)

	b.Handle("/start", h.onStart)
	b.Handle("/cancel", h.onCancel)
	b.Handle("/admin", h.onAdmin)

	b.Handle(&btnVerify, h.onVerify)
	b.Handle(&btnPart, h.onPart)

	b.Handle(&btnAdmAddEntry, h.capDialog(access.CapAddContent, stepAddEntryCode, "Send the code for the new entry."))
	b.Handle(&btnAdmAddPart, h.capDialog(access.CapAddContentPart, stepAddPartCode, "Send the code of the entry to extend."))
	b.Handle(&btnAdmDelete, h.capDialog(access.CapDeleteContent, stepDeleteTarget, "Send `code <code>` to delete an entry or `part <id>` to delete a part."))
	b.Handle(&btnAdmChannelAdd, h.capDialog(access.CapManageChannels, stepChannelAdd, "Send the channel as `@handle Title` or `<chat_id> Title`. Append `optional` to make it non-blocking."))
	b.Handle(&btnAdmChannelDel, h.capDialog(access.CapManageChannels, stepChannelDelete, "Send the position number of the channel to remove."))
	b.Handle(&btnAdmAdminAdd, h.capDialog(access.CapManageAdmins, stepAdminID, "Send the Telegram id of the new admin."))
	b.Handle(&btnAdmAdminDel, h.capDialog(access.CapManageAdmins, stepAdminDelete, "Send the Telegram id of the admin to remove."))
	b.Handle(&btnAdmBroadcast, h.capDialog(access.CapBroadcast, stepBroadcastContent, "Send the message to broadcast: text, photo, video or document."))

	b.Handle(&btnAdmChannels, h.onChannels)
	b.Handle(&btnAdmUserStats, h.onUserStats)
	b.Handle(&btnAdmContentStats, h.onContentStats)
	b.Handle(&btnAdmJobs, h.onJobs)
	b.Handle(&btnAdmAdmins, h.onAdmins)

	b.Handle(tele.OnText, h.onText)
	b.Handle(tele.OnPhoto, h.onMedia)
	b.Handle(tele.OnVideo, h.onMedia)
	b.Handle(tele.OnDocument, h.onMedia)
	b.Handle(tele.OnMyChatMember, h.onChatMember)
}

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), handlerTimeout)
}

// --- middleware ---

func (h *Handlers) recoverMW(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				h.log.Error("panic in handler",
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return next(c)
	}
}

func (h *Handlers) logMW(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		err := next(c)
		d := time.Since(start)

		fields := []logx.Field{
			logx.Int64("chat_id", c.Chat().ID),
			logx.Int64("from_id", c.Sender().ID),
			logx.Duration("dur", d),
		}
		if cb := c.Callback(); cb != nil {
			fields = append(fields, logx.String("callback", strings.TrimSpace(cb.Data)))
		}
		if err != nil {
			h.log.Warn("update failed", append(fields, logx.Err(err))...)
		} else if d >= 750*time.Millisecond {
			h.log.Info("update ok", fields...)
		} else {
			h.log.Debug("update ok", fields...)
		}
		return err
	}
}

// deny reports an authorization failure on a message flow. The typed error
// reaches the logging middleware; the user sees a plain refusal.
func (h *Handlers) deny(c tele.Context) error {
	_ = c.Send("Not authorized.")
	return access.ErrNotAuthorized
}

func (h *Handlers) denyCallback(c tele.Context) error {
	_ = c.Respond(&tele.CallbackResponse{Text: "Forbidden."})
	return access.ErrNotAuthorized
}

// --- gate ---

// ensureSubscribed runs the channel gate for the sender. When blocked it has
// already sent the join prompt; callers just stop. An evaluation error fails
// open: a storage blip must not lock users out of content they could reach a
// second ago.
func (h *Handlers) ensureSubscribed(ctx context.Context, c tele.Context) bool {
	res, err := h.gate.Evaluate(ctx, c.Sender().ID)
	if err != nil {
		h.log.Error("gate evaluation failed; allowing", logx.Int64("from_id", c.Sender().ID), logx.Err(err))
		return true
	}
	if res.Allowed {
		return true
	}
	var sb strings.Builder
	sb.WriteString("To use the bot, join the channels below, then press the button.")
	for _, r := range res.Unsatisfied {
		if r.Handle == "" && r.Title != "" {
			sb.WriteString("\n• ")
			sb.WriteString(r.Title)
		}
	}
	_ = c.Send(sb.String(), subscribeKeyboard(res.Unsatisfied))
	return false
}

func (h *Handlers) onVerify(c tele.Context) error {
	ctx, cancel := opCtx()
	defer cancel()

	res, err := h.gate.Evaluate(ctx, c.Sender().ID)
	if err != nil || res.Allowed {
		_ = c.Respond(&tele.CallbackResponse{Text: "You're in!"})
		return c.Edit("Thanks! Send a code to get started.")
	}
	return c.Respond(&tele.CallbackResponse{Text: "Not yet — join the channels first.", ShowAlert: true})
}

// --- public surface ---

func (h *Handlers) onStart(c tele.Context) error {
	ctx, cancel := opCtx()
	defer cancel()

	if err := h.store.EnsureRecipient(ctx, c.Sender().ID); err != nil {
		h.log.Error("recipient registration failed", logx.Int64("from_id", c.Sender().ID), logx.Err(err))
	}
	if !h.ensureSubscribed(ctx, c) {
		return nil
	}
	return c.Send("Hi! Send me a code and I'll find the entry for you.", userMenu())
}

func (h *Handlers) onCancel(c tele.Context) error {
	h.dialogs.clear(c.Chat().ID)
	return c.Send("Cancelled.", userMenu())
}

func (h *Handlers) onAdmin(c tele.Context) error {
	ctx, cancel := opCtx()
	defer cancel()

	uid := c.Sender().ID
	if !h.auth.IsPrivileged(ctx, uid) {
		return c.Send("Unauthorized.")
	}
	return c.Send("Operator menu:", adminMenu(ctx, h.auth, uid))
}

func (h *Handlers) onText(c tele.Context) error {
	ctx, cancel := opCtx()
	defer cancel()

	chatID := c.Chat().ID
	if d := h.dialogs.active(chatID); d != nil {
		return h.dialogText(ctx, c, d)
	}

	switch c.Text() {
	case btnTextSearch:
		h.dialogs.begin(chatID, stepSearchCode)
		return c.Send("Send the code.")
	case btnTextTop:
		if !h.ensureSubscribed(ctx, c) {
			return nil
		}
		return h.sendTop(ctx, c)
	case btnTextContact:
		if h.contact == "" {
			return c.Send("No contact configured.")
		}
		return c.Send("Reach us here: " + h.contact)
	}

	// Bare text is treated as a code lookup.
	if !h.ensureSubscribed(ctx, c) {
		return nil
	}
	return h.lookup(ctx, c, c.Text())
}

func (h *Handlers) sendTop(ctx context.Context, c tele.Context) error {
	top, err := h.store.TopEntries(ctx, 10)
	if err != nil {
		return c.Send("Stats are unavailable right now.")
	}
	if len(top) == 0 {
		return c.Send("Nothing has been watched yet.")
	}
	var sb strings.Builder
	sb.WriteString("Most popular:\n")
	for i, ev := range top {
		fmt.Fprintf(&sb, "%d. %s — %d views\n", i+1, ev.Title, ev.Views)
	}
	return c.Send(sb.String())
}

// lookup resolves a code and delivers the entry or its parts keyboard.
func (h *Handlers) lookup(ctx context.Context, c tele.Context, raw string) error {
	code := strings.TrimSpace(raw)
	if code == "" {
		return c.Send("Send a code to search.")
	}
	entry, err := h.store.GetEntry(ctx, code)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Send("Nothing found for that code.")
	}
	if err != nil {
		return c.Send("Search is unavailable right now.")
	}
	return h.sendEntry(ctx, c, entry)
}

func (h *Handlers) sendEntry(ctx context.Context, c tele.Context, e storage.Entry) error {
	parts, err := h.store.ListParts(ctx, e.Code)
	if err != nil {
		h.log.Error("listing parts failed", logx.String("code", e.Code), logx.Err(err))
	}
	caption := e.Title
	if e.Description != "" {
		caption += "\n\n" + e.Description
	}
	if len(parts) > 0 {
		return c.Send(caption, partsKeyboard(e.Code, parts))
	}
	if e.FileID == "" {
		return c.Send(caption)
	}
	if err := c.Send(&tele.Video{File: tele.File{FileID: e.FileID}, Caption: caption}); err != nil {
		return err
	}
	if err := h.store.LogView(ctx, e.Code, c.Sender().ID, ""); err != nil {
		h.log.Warn("view log failed", logx.String("code", e.Code), logx.Err(err))
	}
	return nil
}

func (h *Handlers) onPart(c tele.Context) error {
	ctx, cancel := opCtx()
	defer cancel()

	args := c.Args()
	if len(args) != 2 {
		return c.Respond(&tele.CallbackResponse{Text: "Stale button."})
	}
	code := args[0]
	partID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Stale button."})
	}

	if !h.ensureSubscribed(ctx, c) {
		return c.Respond(&tele.CallbackResponse{})
	}

	parts, err := h.store.ListParts(ctx, code)
	if err != nil {
		return c.Respond(&tele.CallbackResponse{Text: "Unavailable right now."})
	}
	for _, p := range parts {
		if p.ID != partID {
			continue
		}
		_ = c.Respond(&tele.CallbackResponse{})
		if err := c.Send(&tele.Video{File: tele.File{FileID: p.FileID}, Caption: p.Name}); err != nil {
			return err
		}
		if err := h.store.LogView(ctx, code, c.Sender().ID, p.Name); err != nil {
			h.log.Warn("view log failed", logx.String("code", code), logx.Err(err))
		}
		return nil
	}
	return c.Respond(&tele.CallbackResponse{Text: "That part is gone."})
}

// --- operator surface ---

// capDialog guards a dialog-opening callback behind a capability.
func (h *Handlers) capDialog(cap access.Capability, s step, prompt string) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx, cancel := opCtx()
		defer cancel()
		if !h.auth.Authorize(ctx, c.Sender().ID, cap) {
			return h.denyCallback(c)
		}
		h.dialogs.begin(c.Chat().ID, s)
		_ = c.Respond(&tele.CallbackResponse{})
		return c.Send(prompt + "\n/cancel to abort.")
	}
}

func (h *Handlers) onChannels(c tele.Context) error {
	ctx, cancel := opCtx()
	defer cancel()
	if !h.auth.Authorize(ctx, c.Sender().ID, access.CapManageChannels) {
		return h.denyCallback(c)
	}
	reqs, err := h.store.ListRequirements(ctx)
	if err != nil {
		return c.Send("Channel list is unavailable right now.")
	}
	if len(reqs) == 0 {
		return c.Send("No channels configured.")
	}
	var sb strings.Builder
	sb.WriteString("Configured channels:\n")
	for _, r := range reqs {
		name := r.Handle
		if name == "" {
			name = strconv.FormatInt(r.ChatID, 10)
		}
		kind := "required"
		if !r.Required {
			kind = "optional"
		}
		if r.Private {
			kind += ", private"
		}
		fmt.Fprintf(&sb, "%d. %s — %s (%s)\n", r.Position, r.Title, name, kind)
	}
	return c.Send(sb.String())
}

func (h *Handlers) onUserStats(c tele.Context) error {
	ctx, cancel := opCtx()
	defer cancel()
	if !h.auth.Authorize(ctx, c.Sender().ID, access.CapViewUserStats) {
		return h.denyCallback(c)
	}
	st, err := h.store.RecipientStats(ctx)
	if err != nil {
		return c.Send("Stats are unavailable right now.")
	}
	return c.Send(fmt.Sprintf(
		"Users: %d total\nJoined today: %d\nLast 7 days: %d\nLast 30 days: %d\nViews today: %d",
		st.Total, st.Today, st.Week, st.Month, st.ViewsToday,
	))
}

func (h *Handlers) onContentStats(c tele.Context) error {
	ctx, cancel := opCtx()
	defer cancel()
	if !h.auth.Authorize(ctx, c.Sender().ID, access.CapViewContentStats) {
		return h.denyCallback(c)
	}
	total, err := h.store.CountEntries(ctx)
	if err != nil {
		return c.Send("Stats are unavailable right now.")
	}
	top, err := h.store.TopEntries(ctx, 10)
	if err != nil {
		return c.Send("Stats are unavailable right now.")
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Entries: %d\n", total)
	for i, ev := range top {
		fmt.Fprintf(&sb, "%d. %s (%s) — %d views\n", i+1, ev.Title, ev.Code, ev.Views)
	}
	return c.Send(sb.String())
}

func (h *Handlers) onJobs(c tele.Context) error {
	ctx, cancel := opCtx()
	defer cancel()
	if !h.auth.Authorize(ctx, c.Sender().ID, access.CapBroadcast) {
		return h.denyCallback(c)
	}
	jobs, err := h.store.ListJobs(ctx, 10)
	if err != nil {
		return c.Send("History is unavailable right now.")
	}
	if len(jobs) == 0 {
		return c.Send("No broadcasts yet.")
	}
	var sb strings.Builder
	sb.WriteString("Recent broadcasts:\n")
	for _, j := range jobs {
		fmt.Fprintf(&sb, "%s %s: %d sent, %d failed of %d (%s)\n",
			j.FinishedAt.Format("2006-01-02 15:04"), j.Kind, j.Sent, j.Failed, j.Total,
			j.FinishedAt.Sub(j.StartedAt).Round(time.Second),
		)
	}
	return c.Send(sb.String())
}

func (h *Handlers) onAdmins(c tele.Context) error {
	ctx, cancel := opCtx()
	defer cancel()
	if !h.auth.Authorize(ctx, c.Sender().ID, access.CapViewAdminList) {
		return h.denyCallback(c)
	}
	ps, err := h.store.ListPrincipals(ctx)
	if err != nil {
		return c.Send("Admin list is unavailable right now.")
	}
	if len(ps) == 0 {
		return c.Send("No admins configured (owners are implicit).")
	}
	var sb strings.Builder
	sb.WriteString("Admins:\n")
	for _, p := range ps {
		caps := p.Caps.String()
		if p.FullAccess {
			caps = "full access"
		}
		fmt.Fprintf(&sb, "%d — %s\n", p.ID, caps)
	}
	return c.Send(sb.String())
}

// --- dialog continuations ---

func (h *Handlers) dialogText(ctx context.Context, c tele.Context, d *dialog) error {
	chatID := c.Chat().ID
	text := strings.TrimSpace(c.Text())

	switch d.step {
	case stepSearchCode:
		h.dialogs.clear(chatID)
		if !h.ensureSubscribed(ctx, c) {
			return nil
		}
		return h.lookup(ctx, c, text)

	case stepAddEntryCode:
		if text == "" {
			return c.Send("The code cannot be empty.")
		}
		d.set("code", text)
		d.step = stepAddEntryTitle
		return c.Send("Now send the title (first line) and an optional description below it.")

	case stepAddEntryTitle:
		title, desc, _ := strings.Cut(text, "\n")
		if strings.TrimSpace(title) == "" {
			return c.Send("The title cannot be empty.")
		}
		d.set("title", strings.TrimSpace(title))
		d.set("description", strings.TrimSpace(desc))
		d.step = stepAddEntryMedia
		return c.Send("Send the video, or /skip for a text-only entry.")

	case stepAddEntryMedia:
		if text == "/skip" {
			return h.commitEntry(ctx, c, d, "")
		}
		return c.Send("Send a video, or /skip.")

	case stepAddPartCode:
		if _, err := h.store.GetEntry(ctx, text); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.Send("No entry with that code.")
			}
			return c.Send("Lookup is unavailable right now.")
		}
		d.set("code", text)
		d.step = stepAddPartName
		return c.Send("Name the part (e.g. \"Episode 2\").")

	case stepAddPartName:
		if text == "" {
			return c.Send("The name cannot be empty.")
		}
		d.set("name", text)
		d.step = stepAddPartVideo
		return c.Send("Send the video for this part.")

	case stepAddPartVideo:
		return c.Send("Send a video to finish, or /cancel.")

	case stepDeleteTarget:
		return h.commitDelete(ctx, c, d, text)

	case stepChannelAdd:
		return h.commitChannelAdd(ctx, c, d, text)

	case stepChannelDelete:
		h.dialogs.clear(chatID)
		pos, err := strconv.Atoi(text)
		if err != nil {
			return c.Send("Send the position number shown in the channel list.")
		}
		if err := h.store.DeleteRequirement(ctx, pos); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.Send("No channel at that position.")
			}
			return c.Send("Removal failed.")
		}
		return c.Send("Channel removed.")

	case stepAdminID:
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return c.Send("Send a numeric Telegram id.")
		}
		d.set("id", strconv.FormatInt(id, 10))
		d.step = stepAdminCaps
		return c.Send("Send the capabilities as a comma-separated list, or `all`.\nAvailable: " + capabilityHint())

	case stepAdminCaps:
		return h.commitAdmin(ctx, c, d, text)

	case stepAdminDelete:
		h.dialogs.clear(chatID)
		id, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return c.Send("Send a numeric Telegram id.")
		}
		if err := h.store.DeletePrincipal(ctx, id); err != nil {
			if errors.Is(err, access.ErrNotFound) {
				return c.Send("No admin with that id.")
			}
			return c.Send("Removal failed.")
		}
		return c.Send("Admin removed.")

	case stepBroadcastContent:
		h.dialogs.clear(chatID)
		return h.startBroadcast(c, broadcast.TextPayload(c.Text()))
	}

	h.dialogs.clear(chatID)
	return nil
}

func (h *Handlers) onMedia(c tele.Context) error {
	ctx, cancel := opCtx()
	defer cancel()

	d := h.dialogs.active(c.Chat().ID)
	kind, fileID, caption := mediaOf(c.Message())
	if fileID == "" {
		return nil
	}

	if d == nil {
		// Operators get the file id echoed back so they can fill the catalog.
		if h.auth.IsPrivileged(ctx, c.Sender().ID) {
			return c.Send("file_id: " + fileID)
		}
		return nil
	}

	switch d.step {
	case stepAddEntryMedia:
		return h.commitEntry(ctx, c, d, fileID)
	case stepAddPartVideo:
		if kind != broadcast.KindVideo {
			return c.Send("Parts must be videos.")
		}
		h.dialogs.clear(c.Chat().ID)
		if !h.auth.Authorize(ctx, c.Sender().ID, access.CapAddContentPart) {
			return h.deny(c)
		}
		if err := h.store.AddPart(ctx, d.get("code"), d.get("name"), fileID); err != nil {
			return c.Send("Saving the part failed: " + err.Error())
		}
		return c.Send("Part saved.")
	case stepBroadcastContent:
		h.dialogs.clear(c.Chat().ID)
		var p broadcast.Payload
		switch kind {
		case broadcast.KindPhoto:
			p = broadcast.PhotoPayload(fileID, caption)
		case broadcast.KindVideo:
			p = broadcast.VideoPayload(fileID, caption)
		default:
			p = broadcast.DocumentPayload(fileID, caption)
		}
		return h.startBroadcast(c, p)
	}
	return nil
}

// --- dialog commits ---

func (h *Handlers) commitEntry(ctx context.Context, c tele.Context, d *dialog, fileID string) error {
	h.dialogs.clear(c.Chat().ID)
	if !h.auth.Authorize(ctx, c.Sender().ID, access.CapAddContent) {
		return h.deny(c)
	}
	e := storage.Entry{
		Code:        d.get("code"),
		Title:       d.get("title"),
		Description: d.get("description"),
		FileID:      fileID,
	}
	if err := h.store.AddEntry(ctx, e); err != nil {
		return c.Send("Saving failed (is the code already taken?).")
	}
	return c.Send(fmt.Sprintf("Entry %q saved. Add parts with the operator menu if needed.", e.Code))
}

func (h *Handlers) commitDelete(ctx context.Context, c tele.Context, d *dialog, text string) error {
	h.dialogs.clear(c.Chat().ID)
	if !h.auth.Authorize(ctx, c.Sender().ID, access.CapDeleteContent) {
		return h.deny(c)
	}
	kind, arg, ok := strings.Cut(text, " ")
	if !ok {
		return c.Send("Use `code <code>` or `part <id>`.")
	}
	arg = strings.TrimSpace(arg)
	switch kind {
	case "code":
		if err := h.store.DeleteEntry(ctx, arg); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.Send("No entry with that code.")
			}
			return c.Send("Deletion failed.")
		}
		return c.Send("Entry and its parts deleted.")
	case "part":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return c.Send("Part id must be a number.")
		}
		if err := h.store.DeletePart(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return c.Send("No part with that id.")
			}
			return c.Send("Deletion failed.")
		}
		return c.Send("Part deleted.")
	}
	return c.Send("Use `code <code>` or `part <id>`.")
}

func (h *Handlers) commitChannelAdd(ctx context.Context, c tele.Context, d *dialog, text string) error {
	h.dialogs.clear(c.Chat().ID)
	if !h.auth.Authorize(ctx, c.Sender().ID, access.CapManageChannels) {
		return h.deny(c)
	}
	req, err := parseRequirement(text)
	if err != nil {
		return c.Send(err.Error())
	}
	if err := h.store.AddRequirement(ctx, req); err != nil {
		return c.Send("Saving the channel failed.")
	}
	kind := "required"
	if !req.Required {
		kind = "optional"
	}
	return c.Send(fmt.Sprintf("Channel %q added (%s). It applies to the very next check.", req.Title, kind))
}

func (h *Handlers) commitAdmin(ctx context.Context, c tele.Context, d *dialog, text string) error {
	h.dialogs.clear(c.Chat().ID)
	if !h.auth.Authorize(ctx, c.Sender().ID, access.CapManageAdmins) {
		return h.deny(c)
	}
	id, err := strconv.ParseInt(d.get("id"), 10, 64)
	if err != nil {
		return c.Send("The dialog lost the admin id; start over.")
	}

	p := access.Principal{ID: id}
	if strings.EqualFold(strings.TrimSpace(text), "all") {
		p.FullAccess = true
	} else {
		for _, tok := range strings.Split(text, ",") {
			cap, ok := access.ParseCapability(tok)
			if !ok {
				return c.Send(fmt.Sprintf("Unknown capability %q. Available: %s", strings.TrimSpace(tok), capabilityHint()))
			}
			p.Caps = p.Caps.Add(cap)
		}
		if p.Caps.IsEmpty() {
			return c.Send("At least one capability is required, or `all`.")
		}
	}
	if err := h.store.SavePrincipal(ctx, p); err != nil {
		return c.Send("Saving the admin failed.")
	}
	return c.Send(fmt.Sprintf("Admin %d saved.", id))
}

// --- broadcast ---

// startBroadcast acknowledges immediately and reports the summary when the
// detached run finishes.
func (h *Handlers) startBroadcast(c tele.Context, p broadcast.Payload) error {
	ctx, cancel := opCtx()
	defer cancel()
	initiator := c.Sender().ID
	if !h.auth.Authorize(ctx, initiator, access.CapBroadcast) {
		return h.deny(c)
	}
	if err := c.Send("Broadcast started."); err != nil {
		return err
	}

	go func() {
		sum, err := h.engine.Trigger(context.Background(), initiator, p)
		if err != nil {
			_ = c.Send("Broadcast aborted: the recipient list could not be loaded.")
			return
		}
		_ = c.Send(fmt.Sprintf(
			"Broadcast finished: %d delivered, %d failed of %d in %s.",
			sum.Sent, sum.Failed, sum.Total, sum.Duration.Round(time.Second),
		))
	}()
	return nil
}

// --- liveness ---

// onChatMember flips the recipient's active flag when they block or unblock
// the bot, keeping the broadcast directory clean.
func (h *Handlers) onChatMember(c tele.Context) error {
	upd := c.ChatMember()
	if upd == nil || upd.NewChatMember == nil || upd.Chat == nil || upd.Chat.Type != tele.ChatPrivate {
		return nil
	}
	ctx, cancel := opCtx()
	defer cancel()

	id := upd.Chat.ID
	switch upd.NewChatMember.Role {
	case tele.Kicked, tele.Left:
		if err := h.store.SetRecipientActive(ctx, id, false); err != nil {
			h.log.Warn("deactivating recipient failed", logx.Int64("recipient", id), logx.Err(err))
		}
	case tele.Member:
		if err := h.store.EnsureRecipient(ctx, id); err != nil {
			h.log.Warn("reactivating recipient failed", logx.Int64("recipient", id), logx.Err(err))
		} else if err := h.store.SetRecipientActive(ctx, id, true); err != nil {
			h.log.Warn("reactivating recipient failed", logx.Int64("recipient", id), logx.Err(err))
		}
	}
	return nil
}

// --- parsing helpers ---

// parseRequirement understands "@handle Title words [optional]" for public
// channels and "<chat_id> Title words [optional]" for private ones.
func parseRequirement(s string) (gate.Requirement, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return gate.Requirement{}, errors.New("send `@handle Title` or `<chat_id> Title`")
	}

	req := gate.Requirement{Required: true}
	if last := fields[len(fields)-1]; strings.EqualFold(last, "optional") {
		req.Required = false
		fields = fields[:len(fields)-1]
	}
	if len(fields) == 0 {
		return gate.Requirement{}, errors.New("the channel identifier is missing")
	}

	ident := fields[0]
	switch {
	case strings.HasPrefix(ident, "@"):
		req.Handle = ident
	default:
		id, err := strconv.ParseInt(ident, 10, 64)
		if err != nil {
			return gate.Requirement{}, errors.New("the identifier must be an @handle or a numeric chat id")
		}
		req.ChatID = id
		req.Private = true
	}

	req.Title = strings.Join(fields[1:], " ")
	if req.Title == "" {
		req.Title = ident
	}
	return req, nil
}

func capabilityHint() string {
	names := make([]string, 0, len(access.AllCapabilities()))
	for _, c := range access.AllCapabilities() {
		names = append(names, c.String())
	}
	return strings.Join(names, ", ")
}

func mediaOf(m *tele.Message) (broadcast.PayloadKind, string, string) {
	if m == nil {
		return broadcast.KindText, "", ""
	}
	switch {
	case m.Photo != nil:
		return broadcast.KindPhoto, m.Photo.FileID, m.Caption
	case m.Video != nil:
		return broadcast.KindVideo, m.Video.FileID, m.Caption
	case m.Document != nil:
		return broadcast.KindDocument, m.Document.FileID, m.Caption
	}
	return broadcast.KindText, "", ""
}
