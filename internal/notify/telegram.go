// Package notify отправляет оповещения об отчетах, требующих эскалации.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gopkg.in/telebot.v3"

	"fault-dashboard/internal/models"
)

// TelegramOptions - параметры Telegram-канала дежурной смены.
type TelegramOptions struct {
	Token     string
	ChannelID int64
	// APIURL переопределяет адрес Bot API (пусто - api.telegram.org).
	APIURL string
	// Timeout ограничивает один запрос к Bot API. Оповещение отправляется
	// внутри POST /api/faults, поэтому по умолчанию DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout - таймаут запроса к Bot API, если он не задан.
const DefaultTimeout = 5 * time.Second

// TelegramNotifier публикует оповещения в канал через Bot API.
type TelegramNotifier struct {
	bot       *telebot.Bot
	channelID int64
}

// NewTelegramNotifier создает отправителя. Бот работает без поллинга:
// он только пишет в канал и не принимает обновления.
func NewTelegramNotifier(opts TelegramOptions) (*TelegramNotifier, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("telegram bot token is not set")
	}
	if opts.ChannelID == 0 {
		return nil, fmt.Errorf("telegram alert channel id is not set")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	b, err := telebot.NewBot(telebot.Settings{
		URL:     opts.APIURL,
		Token:   opts.Token,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: b, channelID: opts.ChannelID}, nil
}

// NotifyFault отправляет сообщение об отчете в канал.
func (n *TelegramNotifier) NotifyFault(ctx context.Context, fault *models.FaultReport, reasons []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	chat := &telebot.Chat{ID: n.channelID}
	if _, err := n.bot.Send(chat, FormatFault(fault, reasons), &telebot.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("send telegram notification to %d: %w", n.channelID, err)
	}
	return nil
}

// FormatFault собирает текст оповещения.
func FormatFault(fault *models.FaultReport, reasons []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 Fault escalation: %s\n", fault.Title)
	fmt.Fprintf(&b, "Severity: %s\n", fault.Severity)
	fmt.Fprintf(&b, "Asset: %s\n", fault.AssetID)
	if fault.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", fault.Location)
	}
	fmt.Fprintf(&b, "Reporter: %s\n", fault.Reporter)
	fmt.Fprintf(&b, "Date: %s\n", fault.Date)
	if len(reasons) > 0 {
		fmt.Fprintf(&b, "Reasons: %s\n", strings.Join(reasons, ", "))
	}
	fmt.Fprintf(&b, "ID: %s", fault.ID)
	return b.String()
}

// Nop - отправитель, который ничего не делает. Используется, когда Telegram не настроен.
type Nop struct{}

func (Nop) NotifyFault(context.Context, *models.FaultReport, []string) error { return nil }
