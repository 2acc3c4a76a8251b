package telegram

import (
	"context"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"kinobot/internal/access"
	"kinobot/internal/gate"
	"kinobot/internal/storage"
)

// Reply-keyboard labels for the public menu. These double as text routes in
// onText.
const (
	btnTextSearch  = "🔍 Find by code"
	btnTextTop     = "🏆 Popular"
	btnTextContact = "✉️ Contact"
)

// Inline buttons. The unique tags are the callback routes.
var (
	btnVerify = tele.Btn{Unique: "gate_verify", Text: "✅ I've joined"}
	btnPart   = tele.Btn{Unique: "part"}

	btnAdmAddEntry     = tele.Btn{Unique: "adm_add_entry", Text: "➕ Add entry"}
	btnAdmAddPart      = tele.Btn{Unique: "adm_add_part", Text: "➕ Add part"}
	btnAdmDelete       = tele.Btn{Unique: "adm_delete", Text: "🗑 Delete content"}
	btnAdmChannels     = tele.Btn{Unique: "adm_channels", Text: "📢 Channels"}
	btnAdmChannelAdd   = tele.Btn{Unique: "adm_channel_add", Text: "➕ Add channel"}
	btnAdmChannelDel   = tele.Btn{Unique: "adm_channel_del", Text: "🗑 Remove channel"}
	btnAdmUserStats    = tele.Btn{Unique: "adm_user_stats", Text: "👥 User stats"}
	btnAdmContentStats = tele.Btn{Unique: "adm_content_stats", Text: "📈 Content stats"}
	btnAdmBroadcast    = tele.Btn{Unique: "adm_broadcast", Text: "📣 Broadcast"}
	btnAdmJobs         = tele.Btn{Unique: "adm_jobs", Text: "🗂 Broadcast history"}
	btnAdmAdminAdd     = tele.Btn{Unique: "adm_admin_add", Text: "➕ Add admin"}
	btnAdmAdminDel     = tele.Btn{Unique: "adm_admin_del", Text: "🗑 Remove admin"}
	btnAdmAdmins       = tele.Btn{Unique: "adm_admins", Text: "👮 Admins"}
)

func userMenu() *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{ResizeKeyboard: true}
	m.Reply(
		m.Row(m.Text(btnTextSearch)),
		m.Row(m.Text(btnTextTop), m.Text(btnTextContact)),
	)
	return m
}

// adminMenu shows only the sections the operator is authorized for. The
// filter is cosmetic; every callback re-checks on execution.
func adminMenu(ctx context.Context, auth *access.Authority, uid int64) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	var rows []tele.Row

	if auth.Authorize(ctx, uid, access.CapAddContent) {
		row := tele.Row{m.Data(btnAdmAddEntry.Text, btnAdmAddEntry.Unique)}
		if auth.Authorize(ctx, uid, access.CapAddContentPart) {
			row = append(row, m.Data(btnAdmAddPart.Text, btnAdmAddPart.Unique))
		}
		rows = append(rows, row)
	} else if auth.Authorize(ctx, uid, access.CapAddContentPart) {
		rows = append(rows, m.Row(m.Data(btnAdmAddPart.Text, btnAdmAddPart.Unique)))
	}
	if auth.Authorize(ctx, uid, access.CapDeleteContent) {
		rows = append(rows, m.Row(m.Data(btnAdmDelete.Text, btnAdmDelete.Unique)))
	}
	if auth.Authorize(ctx, uid, access.CapManageChannels) {
		rows = append(rows, m.Row(
			m.Data(btnAdmChannels.Text, btnAdmChannels.Unique),
			m.Data(btnAdmChannelAdd.Text, btnAdmChannelAdd.Unique),
			m.Data(btnAdmChannelDel.Text, btnAdmChannelDel.Unique),
		))
	}
	var statsRow tele.Row
	if auth.Authorize(ctx, uid, access.CapViewUserStats) {
		statsRow = append(statsRow, m.Data(btnAdmUserStats.Text, btnAdmUserStats.Unique))
	}
	if auth.Authorize(ctx, uid, access.CapViewContentStats) {
		statsRow = append(statsRow, m.Data(btnAdmContentStats.Text, btnAdmContentStats.Unique))
	}
	if len(statsRow) > 0 {
		rows = append(rows, statsRow)
	}
	if auth.Authorize(ctx, uid, access.CapBroadcast) {
		rows = append(rows, m.Row(
			m.Data(btnAdmBroadcast.Text, btnAdmBroadcast.Unique),
			m.Data(btnAdmJobs.Text, btnAdmJobs.Unique),
		))
	}
	if auth.Authorize(ctx, uid, access.CapManageAdmins) {
		rows = append(rows, m.Row(
			m.Data(btnAdmAdminAdd.Text, btnAdmAdminAdd.Unique),
			m.Data(btnAdmAdminDel.Text, btnAdmAdminDel.Unique),
		))
	}
	if auth.Authorize(ctx, uid, access.CapViewAdminList) {
		rows = append(rows, m.Row(m.Data(btnAdmAdmins.Text, btnAdmAdmins.Unique)))
	}

	m.Inline(rows...)
	return m
}

// subscribeKeyboard links each unsatisfied public channel and appends the
// verification button. Private channels without a joinable link are named in
// the prompt text instead.
func subscribeKeyboard(unsatisfied []gate.Requirement) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	var rows []tele.Row
	for _, r := range unsatisfied {
		if r.Handle == "" {
			continue
		}
		title := r.Title
		if title == "" {
			title = r.Handle
		}
		url := "https://t.me/" + strings.TrimPrefix(r.Handle, "@")
		rows = append(rows, m.Row(m.URL(title, url)))
	}
	rows = append(rows, m.Row(m.Data(btnVerify.Text, btnVerify.Unique)))
	m.Inline(rows...)
	return m
}

func partsKeyboard(code string, parts []storage.Part) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	var rows []tele.Row
	row := tele.Row{}
	for _, p := range parts {
		row = append(row, m.Data(p.Name, btnPart.Unique, code, strconv.FormatInt(p.ID, 10)))
		if len(row) == 3 {
			rows = append(rows, row)
			row = tele.Row{}
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	m.Inline(rows...)
	return m
}
