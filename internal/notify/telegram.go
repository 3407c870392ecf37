package notify

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"grovli-client/internal/events"
)

// messageSender is the slice of the bot API the sink needs.
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink forwards plan lifecycle events to a Telegram chat. It is
// optional; when no bot token is configured the sink is simply not started.
type TelegramSink struct {
	api    messageSender
	chatID int64
	bus    *events.Bus
	logger *slog.Logger
}

// NewTelegramSink connects to the bot API.
func NewTelegramSink(token string, chatID int64, bus *events.Bus, logger *slog.Logger) (*TelegramSink, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramSink{api: bot, chatID: chatID, bus: bus, logger: logger}, nil
}

// Run subscribes to plan events and forwards them until ctx is done.
func (s *TelegramSink) Run(ctx context.Context) {
	ready, cancelReady := s.bus.Subscribe(events.TopicPlanReady)
	defer cancelReady()
	failed, cancelFailed := s.bus.Subscribe(events.TopicGenerationFailed)
	defer cancelFailed()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-ready:
			if !ok {
				return
			}
			payload, valid := event.Payload.(events.PlanReadyPayload)
			if !valid {
				continue
			}
			s.send(fmt.Sprintf("🍽️ Your meal plan is ready! (plan %s)", payload.ResultID))
		case _, ok := <-failed:
			if !ok {
				return
			}
			s.send("❌ Meal plan generation failed. Please try again.")
		}
	}
}

func (s *TelegramSink) send(text string) {
	msg := tgbotapi.NewMessage(s.chatID, text)
	if _, err := s.api.Send(msg); err != nil {
		s.logger.Warn("failed to send telegram notification", "error", err)
	}
}
