package telegram

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	tele "gopkg.in/telebot.v4"

	"kinobot/internal/broadcast"
)

// wrapSendError translates telebot failures into the marker errors the
// broadcast classifier understands. Anything unrecognized passes through
// untouched and is counted as unknown.
func wrapSendError(err error) error {
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return &broadcast.RateLimitedError{RetryAfter: time.Duration(flood.RetryAfter) * time.Second}
	}

	if errors.Is(err, tele.ErrBlockedByUser) ||
		errors.Is(err, tele.ErrUserIsDeactivated) ||
		errors.Is(err, tele.ErrNotStartedByUser) ||
		errors.Is(err, tele.ErrChatNotFound) {
		return fmt.Errorf("%w: %v", broadcast.ErrRecipientGone, err)
	}
	// Any other 403 still means the recipient will never accept the message.
	var te *tele.Error
	if errors.As(err, &te) && te.Code == 403 {
		return fmt.Errorf("%w: %v", broadcast.ErrRecipientGone, err)
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", broadcast.ErrTransport, err)
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return fmt.Errorf("%w: %v", broadcast.ErrTransport, err)
	}

	return err
}
