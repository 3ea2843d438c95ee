// Package bot sends operational notices to the administrators' Telegram chat.
package bot

import (
	"fmt"
	"html"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"
)

// Notifier posts messages to a single admin chat. It never polls for updates.
type Notifier struct {
	tb     *tele.Bot
	chat   tele.ChatID
	logger *zap.Logger
}

// New creates a Notifier. Offline mode skips the getMe round trip.
func New(token string, adminChatID int64, logger *zap.Logger) (*Notifier, error) {
	if token == "" || adminChatID == 0 {
		return nil, fmt.Errorf("bot token and admin chat id are required")
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		OnError: func(err error, c tele.Context) {
			logger.Error("telebot error", zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telebot: %w", err)
	}
	return &Notifier{tb: tb, chat: tele.ChatID(adminChatID), logger: logger}, nil
}

// Notify sends text as an HTML message.
func (n *Notifier) Notify(title string, lines ...string) error {
	msg := "<b>" + html.EscapeString(title) + "</b>"
	for _, l := range lines {
		msg += "\n" + html.EscapeString(l)
	}
	_, err := n.tb.Send(n.chat, msg, tele.ModeHTML)
	return err
}
