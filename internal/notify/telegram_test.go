package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"grovli-client/internal/events"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func TestTelegramSinkForwardsPlanReady(t *testing.T) {
	bus := events.NewBus()
	sender := &fakeSender{}
	sink := &TelegramSink{api: sender, chatID: 42, bus: bus, logger: quietLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	// Give the subscriber time to register before publishing.
	time.Sleep(10 * time.Millisecond)
	bus.Publish(events.TopicPlanReady, events.PlanReadyPayload{JobID: "job_1", ResultID: "plan_42"})

	deadline := time.After(2 * time.Second)
	for {
		if msgs := sender.messages(); len(msgs) > 0 {
			if msgs[0].ChatID != 42 || !strings.Contains(msgs[0].Text, "plan_42") {
				t.Errorf("Unexpected message: %+v", msgs[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("Timed out waiting for the telegram message")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
