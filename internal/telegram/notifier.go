package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"

	"github.com/edgard/chatlog/internal/challenge"
)

// Notifier delivers challenges as Telegram messages. Subscriber ids are
// Telegram user ids, which double as private chat ids.
type Notifier struct {
	sender sender
}

// Notify implements challenge.Notifier.
func (n *Notifier) Notify(ctx context.Context, d challenge.Delivery) error {
	chatID, err := strconv.ParseInt(d.UserID, 10, 64)
	if err != nil {
		return &challenge.PermanentError{Err: fmt.Errorf("subscriber %q is not a telegram id: %w", d.UserID, err)}
	}

	_, err = n.sender.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: d.Text})
	if err == nil {
		return nil
	}
	if isPermanent(err) {
		return &challenge.PermanentError{Err: err}
	}
	return err
}

// isPermanent reports errors a resend cannot fix, such as a user who blocked
// the bot.
func isPermanent(err error) bool {
	return errors.Is(err, bot.ErrorForbidden) ||
		errors.Is(err, bot.ErrorBadRequest) ||
		errors.Is(err, bot.ErrorUnauthorized) ||
		errors.Is(err, bot.ErrorNotFound)
}
