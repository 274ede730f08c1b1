package alerts

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// TelegramNotifier sends fired alerts to a set of Telegram chats.
type TelegramNotifier struct {
	api     *tgbotapi.BotAPI
	chatIDs []int64
}

// NewTelegramNotifier creates a Telegram-backed notifier.
func NewTelegramNotifier(botToken string, chatIDs []int64) (*TelegramNotifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	log.Info().
		Str("bot_username", api.Self.UserName).
		Int("chat_count", len(chatIDs)).
		Msg("Telegram notifier initialized")

	return &TelegramNotifier{api: api, chatIDs: chatIDs}, nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(n.chatIDs) == 0 {
		log.Warn().Msg("No Telegram chat IDs configured, skipping alerts")
		return nil
	}

	message := formatAlerts(alerts)

	var lastErr error
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, message)
		msg.ParseMode = "Markdown"
		if _, err := n.api.Send(msg); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send Telegram alert")
			lastErr = err
		}
	}
	return lastErr
}

func formatAlerts(alerts []Alert) string {
	var b strings.Builder
	b.WriteString("*Portfolio alerts*\n")
	for _, alert := range alerts {
		icon := "⚠️"
		if alert.Level == LevelHigh {
			icon = "🚨"
		}
		fmt.Fprintf(&b, "%s *%s*: %s\n", icon, alert.Code, alert.Message)
	}
	return b.String()
}
