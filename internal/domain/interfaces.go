package domain

import (
	"context"

	"arenda/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// EventPublisher fans domain events out to in-process consumers.
type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Notifier delivers best-effort operational notifications to managers.
type Notifier interface {
	NotifyManagers(text string)
}

// TelegramSender is the slice of the bot API the notifier needs.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// BlockFeed reads host-maintained blocked ranges from an external calendar.
type BlockFeed interface {
	FetchBlocks(ctx context.Context) ([]*models.ExternalBlock, error)
}
