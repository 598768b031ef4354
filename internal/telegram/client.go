// Package telegram pushes fired alerts to a Telegram chat.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/tickwatch/tickwatch/internal/models"
)

// Client sends alert notifications through the Telegram Bot API.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     3,
		retryDelayBase: time.Second,
	}, nil
}

// Notify sends one alert as a MarkdownV2 message.
func (c *Client) Notify(alert models.Alert) error {
	return c.sendMarkdownV2(formatAlert(alert))
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// formatAlert formats one alert into a Telegram MarkdownV2 message.
func formatAlert(alert models.Alert) string {
	var b strings.Builder
	b.WriteString("🚨 *Breakout Alert*\n\n")
	b.WriteString(fmt.Sprintf("📈 *%s* at %s\n",
		escapeMarkdownV2(alert.Symbol),
		escapeMarkdownV2(fmt.Sprintf("%.2f", alert.Price)),
	))
	b.WriteString(fmt.Sprintf("🔊 Relative volume: %s\n",
		escapeMarkdownV2(fmt.Sprintf("%.2fx", alert.RelativeVolume)),
	))
	b.WriteString(fmt.Sprintf("Δ Change: %s\n",
		escapeMarkdownV2(fmt.Sprintf("%.2f%%", alert.ChangePercent)),
	))
	b.WriteString(fmt.Sprintf("🕒 %s\n",
		escapeMarkdownV2(alert.FiredAt.Format("2006-01-02 15:04:05")),
	))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
