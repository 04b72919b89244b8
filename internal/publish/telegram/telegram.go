// Package telegram publishes fragments to a Telegram chat or channel.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"shawbot/internal/publish"
	logx "shawbot/pkg/logx"
)

type Config struct {
	Token string
	// Chat is a numeric chat id or an @channel username.
	Chat string
	// URL overrides the Bot API endpoint (tests, local Bot API servers).
	URL     string
	Timeout time.Duration
}

type Publisher struct {
	bot  *tele.Bot
	chat tele.Recipient
	log  logx.Logger
}

// New validates the token against the Bot API (getMe).
func New(cfg Config, log logx.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	chat := strings.TrimSpace(cfg.Chat)
	if chat == "" {
		return nil, errors.New("telegram chat is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: timeout},
		Offline: false,
	})
	if err != nil {
		return nil, err
	}
	log.Info("telegram publisher ready", logx.String("bot", b.Me.Username), logx.String("chat", chat))
	return &Publisher{bot: b, chat: recipient(chat), log: log}, nil
}

// Publish sends text as a plain message. The Bot API call is not
// cancellable; on ctx expiry Publish returns while the HTTP client timeout
// bounds the abandoned call.
func (p *Publisher) Publish(ctx context.Context, text string) error {
	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := p.bot.Send(p.chat, text, &tele.SendOptions{DisableWebPagePreview: true})
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			var flood tele.FloodError
			if errors.As(r.err, &flood) {
				return publish.RetryAfter(r.err, time.Duration(flood.RetryAfter)*time.Second)
			}
			return r.err
		}
		p.log.Debug("message sent", logx.Int("id", r.msg.ID))
		return nil
	}
}

type recipient string

func (r recipient) Recipient() string { return string(r) }
