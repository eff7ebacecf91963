package telegram

import (
	"context"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/pscheid92/electionwatch/internal/domain"
)

type mockService struct {
	subscribeFn   func(ctx context.Context, id domain.SubscriberID) (*domain.Subscriber, bool)
	unsubscribeFn func(ctx context.Context, id domain.SubscriberID) bool
	watchFn       func(ctx context.Context, id domain.SubscriberID, region string) (string, error)
	unwatchFn     func(ctx context.Context, id domain.SubscriberID, region string) (string, error)
	setIntervalFn func(ctx context.Context, id domain.SubscriberID, interval time.Duration) (*domain.Subscriber, error)
	subscriberFn  func(id domain.SubscriberID) (*domain.Subscriber, error)
	infoFn        func(ctx context.Context, region string) (string, error)
	regions       []string
}

func (m *mockService) Subscribe(ctx context.Context, id domain.SubscriberID) (*domain.Subscriber, bool) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, id)
	}
	return &domain.Subscriber{ID: id}, true
}

func (m *mockService) Unsubscribe(ctx context.Context, id domain.SubscriberID) bool {
	if m.unsubscribeFn != nil {
		return m.unsubscribeFn(ctx, id)
	}
	return false
}

func (m *mockService) Watch(ctx context.Context, id domain.SubscriberID, region string) (string, error) {
	if m.watchFn != nil {
		return m.watchFn(ctx, id, region)
	}
	return region, nil
}

func (m *mockService) Unwatch(ctx context.Context, id domain.SubscriberID, region string) (string, error) {
	if m.unwatchFn != nil {
		return m.unwatchFn(ctx, id, region)
	}
	return region, nil
}

func (m *mockService) SetInterval(ctx context.Context, id domain.SubscriberID, interval time.Duration) (*domain.Subscriber, error) {
	if m.setIntervalFn != nil {
		return m.setIntervalFn(ctx, id, interval)
	}
	return &domain.Subscriber{ID: id, PollInterval: interval}, nil
}

func (m *mockService) Subscriber(id domain.SubscriberID) (*domain.Subscriber, error) {
	if m.subscriberFn != nil {
		return m.subscriberFn(id)
	}
	return nil, domain.ErrSubscriberNotFound
}

func (m *mockService) Info(ctx context.Context, region string) (string, error) {
	if m.infoFn != nil {
		return m.infoFn(ctx, region)
	}
	return "", domain.ErrNoSnapshot
}

func (m *mockService) Regions() []string { return m.regions }

type sentMessage struct {
	chatID int64
	text   string
}

// mockAPI records sent messages and replays queued update batches.
type mockAPI struct {
	mu      sync.Mutex
	sent    []sentMessage
	sendErr []error
	batches [][]tgbotapi.Update
	offsets []int
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sendErr) > 0 {
		err := m.sendErr[0]
		m.sendErr = m.sendErr[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		m.sent = append(m.sent, sentMessage{chatID: msg.ChatID, text: msg.Text})
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) GetUpdates(cfg tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	m.mu.Lock()
	m.offsets = append(m.offsets, cfg.Offset)
	var batch []tgbotapi.Update
	if len(m.batches) > 0 {
		batch, m.batches = m.batches[0], m.batches[1:]
	}
	m.mu.Unlock()

	if batch == nil {
		time.Sleep(time.Millisecond)
	}
	return batch, nil
}

func (m *mockAPI) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMessage(nil), m.sent...)
}

func commandUpdate(updateID int, chatID int64, text, command string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: updateID,
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: chatID},
			Text: text,
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len(command) + 1},
			},
		},
	}
}
