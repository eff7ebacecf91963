// Package telegram binds the chat commands to a Telegram bot and delivers
// reports as chat messages.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/pscheid92/electionwatch/internal/adapter/metrics"
	"github.com/pscheid92/electionwatch/internal/domain"
	"github.com/pscheid92/electionwatch/internal/platform/correlation"
	"github.com/pscheid92/electionwatch/internal/platform/retry"
)

const (
	pollTimeoutSeconds = 30
	pollErrorBackoff   = 3 * time.Second
)

var sendPolicy = retry.Policy{
	MaxAttempts:      3,
	InitialBackoff:   time.Second,
	RateLimitBackoff: 5 * time.Second,
}

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// Bot long-polls for commands and implements domain.Deliverer. Outgoing
// messages share one token bucket so bursts of reports stay under the
// platform's flood limit.
type Bot struct {
	api      API
	commands *Commands
	limiter  *rate.Limiter
	clock    clockwork.Clock
	policy   retry.Policy
	metrics  *metrics.ChatMetrics
}

var _ domain.Deliverer = (*Bot)(nil)

// Connect authenticates token against the Bot API.
func Connect(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	slog.Info("Telegram bot connected", "username", api.Self.UserName)
	return api, nil
}

// NewBot creates a bot sending at most sendRate messages per second.
func NewBot(api API, commands *Commands, sendRate float64, clock clockwork.Clock, m *metrics.ChatMetrics) *Bot {
	burst := max(1, int(sendRate))
	p := sendPolicy
	p.Clock = clock
	return &Bot{
		api:      api,
		commands: commands,
		limiter:  rate.NewLimiter(rate.Limit(sendRate), burst),
		clock:    clock,
		policy:   p,
		metrics:  m,
	}
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = pollTimeoutSeconds

	slog.InfoContext(ctx, "Telegram update loop started")
	for {
		if ctx.Err() != nil {
			slog.Info("Telegram update loop stopped")
			return
		}

		updates, err := b.api.GetUpdates(cfg)
		if err != nil {
			b.metrics.PollErrors.Inc()
			slog.WarnContext(ctx, "Failed to get updates, retrying", "error", err, "backoff", pollErrorBackoff)
			select {
			case <-ctx.Done():
			case <-b.clock.After(pollErrorBackoff):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= cfg.Offset {
				cfg.Offset = u.UpdateID + 1
			}
			b.HandleUpdate(ctx, u)
		}
	}
}

// HandleUpdate answers a single command message. Other updates are ignored.
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	msg := u.Message
	if msg == nil || !msg.IsCommand() {
		return
	}

	ctx, _ = correlation.Ensure(ctx)
	id := chatSubscriberID(msg.Chat.ID)
	command := msg.Command()
	b.metrics.CommandsTotal.WithLabelValues(command).Inc()
	slog.DebugContext(ctx, "Handling command", "subscriber", id, "command", command)

	reply := b.commands.Handle(ctx, id, command, msg.CommandArguments())
	if err := b.send(ctx, msg.Chat.ID, reply); err != nil {
		slog.WarnContext(ctx, "Failed to send reply", "subscriber", id, "command", command, "error", err)
	}
}

// Deliver sends a report to the chat named by its subscriber id.
func (b *Bot) Deliver(ctx context.Context, r domain.Report) error {
	chatID, err := strconv.ParseInt(string(r.SubscriberID), 10, 64)
	if err != nil {
		return fmt.Errorf("subscriber %q is not a telegram chat: %w", r.SubscriberID, err)
	}
	return b.send(ctx, chatID, r.Text)
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) error {
	return retry.DoVoid(ctx, b.policy, classify, func(ctx context.Context) error {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			return wrapAPIError(err)
		}
		return nil
	})
}

func chatSubscriberID(chatID int64) domain.SubscriberID {
	return domain.SubscriberID(strconv.FormatInt(chatID, 10))
}

// floodError exposes the Bot API's retry_after to the retry policy.
type floodError struct {
	err *tgbotapi.Error
}

func (e floodError) Error() string { return fmt.Sprintf("telegram api %d: %s", e.err.Code, e.err.Message) }
func (e floodError) Unwrap() error { return e.err }

func (e floodError) RetryAfter() time.Duration {
	return time.Duration(e.err.RetryAfter) * time.Second
}

func wrapAPIError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return floodError{err: apiErr}
	}
	return err
}

func classify(err error) retry.Action {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}

	var fe floodError
	if errors.As(err, &fe) {
		switch {
		case fe.err.Code == http.StatusTooManyRequests:
			return retry.After
		case fe.err.Code >= 400 && fe.err.Code < 500:
			return retry.Stop
		}
	}
	return retry.Retry
}
