package notify

import (
	"errors"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, f.err
}

func TestNotifyManagers(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeSender{}
	notifier := NewTelegramNotifierWithSender(sender, []int64{100, 200}, &logger)

	notifier.NotifyManagers("calendar block placed")

	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(100), sender.sent[0].ChatID)
	assert.Equal(t, int64(200), sender.sent[1].ChatID)
	assert.Equal(t, "calendar block placed", sender.sent[0].Text)
}

func TestNotifyManagers_SendFailureIsSwallowed(t *testing.T) {
	logger := zerolog.Nop()
	sender := &fakeSender{err: errors.New("chat not found")}
	notifier := NewTelegramNotifierWithSender(sender, []int64{100, 200}, &logger)

	// Must not panic and must try every manager.
	notifier.NotifyManagers("hello")
	assert.Len(t, sender.sent, 2)
}

func TestNotifyManagers_NilReceiverSafe(t *testing.T) {
	var notifier *TelegramNotifier
	notifier.NotifyManagers("ignored")
}
