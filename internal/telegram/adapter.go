// Package telegram is the bot-facing surface: the telebot adapter that
// implements the transport, membership probe and handle resolver the core
// packages depend on, plus the command handlers and conversation flows.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"kinobot/internal/broadcast"
	"kinobot/internal/gate"
	"kinobot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

// Adapter wraps the telebot client. It keeps tele.* types out of the core
// packages: broadcast sees a Transport, gate sees a MembershipProbe and a
// HandleResolver.
type Adapter struct {
	bot *tele.Bot
	log logx.Logger
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		// The logging middleware has already reported handler errors by the
		// time they reach here; keep this quiet.
		OnError: func(err error, _ tele.Context) {
			log.Debug("unhandled handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{bot: b, log: log}, nil
}

func (a *Adapter) Bot() *tele.Bot { return a.bot }

// Start runs the long-poll loop; it blocks until Stop.
func (a *Adapter) Start() { a.bot.Start() }

func (a *Adapter) Stop() { a.bot.Stop() }

// Send implements broadcast.Transport.
func (a *Adapter) Send(ctx context.Context, recipientID int64, p broadcast.Payload) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := &tele.Chat{ID: recipientID}

	var err error
	switch p.Kind {
	case broadcast.KindText:
		_, err = a.bot.Send(to, p.Text)
	case broadcast.KindPhoto:
		_, err = a.bot.Send(to, &tele.Photo{File: tele.File{FileID: p.FileID}, Caption: p.Caption})
	case broadcast.KindVideo:
		_, err = a.bot.Send(to, &tele.Video{File: tele.File{FileID: p.FileID}, Caption: p.Caption})
	case broadcast.KindDocument:
		_, err = a.bot.Send(to, &tele.Document{File: tele.File{FileID: p.FileID}, Caption: p.Caption})
	default:
		return errors.New("unsupported payload kind")
	}
	return wrapSendError(err)
}

// GetStatus implements gate.MembershipProbe.
func (a *Adapter) GetStatus(ctx context.Context, chatID, recipientID int64) (gate.Membership, error) {
	if err := ctx.Err(); err != nil {
		return gate.NotMember, err
	}
	m, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: recipientID})
	if err != nil {
		return gate.NotMember, err
	}
	switch m.Role {
	case tele.Creator, tele.Administrator, tele.Member, tele.Restricted:
		return gate.Member, nil
	default:
		return gate.NotMember, nil
	}
}

// ResolveHandle implements gate.HandleResolver.
func (a *Adapter) ResolveHandle(ctx context.Context, handle string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	chat, err := a.bot.ChatByUsername(handle)
	if err != nil {
		return 0, err
	}
	return chat.ID, nil
}
