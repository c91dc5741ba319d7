package notify

import (
	"arenda/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramNotifier sends operational messages to manager chats. Delivery is
// best effort; a failed send is logged and dropped.
type TelegramNotifier struct {
	bot      domain.TelegramSender
	managers []int64
	log      zerolog.Logger
}

func NewTelegramNotifier(token string, debug bool, managers []int64, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = debug

	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "notify").Logger()
	}
	return &TelegramNotifier{bot: bot, managers: managers, log: log}, nil
}

// NewTelegramNotifierWithSender wires a prebuilt sender, used in tests.
func NewTelegramNotifierWithSender(bot domain.TelegramSender, managers []int64, logger *zerolog.Logger) *TelegramNotifier {
	var log zerolog.Logger
	if logger != nil {
		log = logger.With().Str("component", "notify").Logger()
	}
	return &TelegramNotifier{bot: bot, managers: managers, log: log}
}

func (n *TelegramNotifier) NotifyManagers(text string) {
	if n == nil || n.bot == nil {
		return
	}
	for _, chatID := range n.managers {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.log.Error().Err(err).Int64("chat_id", chatID).Msg("notify send failed")
		}
	}
}
