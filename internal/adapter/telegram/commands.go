package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pscheid92/electionwatch/internal/domain"
)

// Service is the part of the application the chat commands drive.
type Service interface {
	Subscribe(ctx context.Context, id domain.SubscriberID) (*domain.Subscriber, bool)
	Unsubscribe(ctx context.Context, id domain.SubscriberID) bool
	Watch(ctx context.Context, id domain.SubscriberID, region string) (string, error)
	Unwatch(ctx context.Context, id domain.SubscriberID, region string) (string, error)
	SetInterval(ctx context.Context, id domain.SubscriberID, interval time.Duration) (*domain.Subscriber, error)
	Subscriber(id domain.SubscriberID) (*domain.Subscriber, error)
	Info(ctx context.Context, region string) (string, error)
	Regions() []string
}

const (
	replyNegativeInterval = "Sorry, we can not go back to future!"
	replySetUsage         = "Usage: /set <minutes>"
	replyIntervalTooLong  = "That is longer than I will be around. Try fewer minutes."
	replyIntervalSet      = "Interval set successfully!"
	replyCancelled        = "I won't bother you anymore."
	replyNotSubscribed    = "I didn't plan on texting you anyway."
	replyUnknownCommand   = "Sorry, I don't know that command. Try /help."
)

// Commands turns a chat command into a reply. It holds no chat-platform
// types so it can be driven from tests directly.
type Commands struct {
	svc Service
}

func NewCommands(svc Service) *Commands {
	return &Commands{svc: svc}
}

// Handle executes command (without the leading slash) for the chat id and
// returns the reply text.
func (c *Commands) Handle(ctx context.Context, id domain.SubscriberID, command, args string) string {
	args = strings.TrimSpace(args)

	switch command {
	case "start", "help":
		sub, _ := c.svc.Subscribe(ctx, id)
		return c.usage(sub)
	case "set":
		return c.set(ctx, id, args)
	case "cancel":
		if c.svc.Unsubscribe(ctx, id) {
			return replyCancelled
		}
		return replyNotSubscribed
	case "watch":
		return c.watch(ctx, id, args)
	case "unwatch":
		return c.unwatch(ctx, id, args)
	case "watchlist":
		return c.watchlist(id)
	case "info":
		return c.info(ctx, args)
	case "regions":
		return "Available states: " + strings.Join(c.svc.Regions(), ", ")
	default:
		return replyUnknownCommand
	}
}

func (c *Commands) usage(sub *domain.Subscriber) string {
	var b strings.Builder
	b.WriteString("Hey there!\n")
	b.WriteString("Use /set <minutes> to set the interval i should look for new votes.\n")
	b.WriteString("Use /cancel to stop me from texting you.\n")
	b.WriteString("Use /watch <state> and /unwatch <state> to change which states you follow.\n")
	b.WriteString("Use /info <state> for the current numbers and /regions for all states.\n\n")
	b.WriteString("Currently the following states are considered: ")
	b.WriteString(formatWatchlist(sub.Watchlist))
	b.WriteString(".")
	return b.String()
}

func (c *Commands) set(ctx context.Context, id domain.SubscriberID, args string) string {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return replySetUsage
	}
	minutes, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return replySetUsage
	}
	if minutes < 0 {
		return replyNegativeInterval
	}
	if minutes > domain.MaxIntervalMinutes {
		return replyIntervalTooLong
	}

	if _, err := c.svc.SetInterval(ctx, id, time.Duration(minutes)*time.Minute); err != nil {
		slog.WarnContext(ctx, "Set interval failed", "subscriber", id, "error", err)
		return replySetUsage
	}
	return replyIntervalSet
}

func (c *Commands) watch(ctx context.Context, id domain.SubscriberID, args string) string {
	if args == "" {
		return "Usage: /watch <state>"
	}
	region, err := c.svc.Watch(ctx, id, args)
	if errors.Is(err, domain.ErrUnknownRegion) {
		return fmt.Sprintf("I don't know a state called %q. Try /regions.", args)
	}
	if err != nil {
		slog.WarnContext(ctx, "Watch failed", "subscriber", id, "error", err)
		return "Something went wrong, please try again later."
	}
	return fmt.Sprintf("Now watching %s.", region)
}

func (c *Commands) unwatch(ctx context.Context, id domain.SubscriberID, args string) string {
	if args == "" {
		return "Usage: /unwatch <state>"
	}
	region, err := c.svc.Unwatch(ctx, id, args)
	switch {
	case errors.Is(err, domain.ErrUnknownRegion):
		return fmt.Sprintf("I don't know a state called %q. Try /regions.", args)
	case errors.Is(err, domain.ErrSubscriberNotFound):
		return replyNotSubscribed
	case errors.Is(err, domain.ErrNotWatching):
		return fmt.Sprintf("You weren't watching %s.", region)
	case err != nil:
		slog.WarnContext(ctx, "Unwatch failed", "subscriber", id, "error", err)
		return "Something went wrong, please try again later."
	}
	return fmt.Sprintf("Stopped watching %s.", region)
}

func (c *Commands) watchlist(id domain.SubscriberID) string {
	sub, err := c.svc.Subscriber(id)
	if err != nil {
		return "You are not subscribed yet. Use /start."
	}
	if len(sub.Watchlist) == 0 {
		return "You are not watching any states. Use /watch <state>."
	}
	interval := "off"
	if sub.PollInterval > 0 {
		interval = fmt.Sprintf("every %d minutes", int(sub.PollInterval/time.Minute))
	}
	return fmt.Sprintf("Watching: %s\nUpdates: %s", formatWatchlist(sub.Watchlist), interval)
}

func (c *Commands) info(ctx context.Context, args string) string {
	if args == "" {
		return "Usage: /info <state>"
	}
	text, err := c.svc.Info(ctx, args)
	switch {
	case errors.Is(err, domain.ErrUnknownRegion):
		return fmt.Sprintf("I don't know a state called %q. Try /regions.", args)
	case errors.Is(err, domain.ErrRegionNotReported):
		return "There are no numbers for that state yet."
	case errors.Is(err, domain.ErrNoSnapshot):
		return "I couldn't reach the results feed, please try again later."
	case err != nil:
		slog.WarnContext(ctx, "Info failed", "error", err)
		return "Something went wrong, please try again later."
	}
	return text
}

func formatWatchlist(regions []string) string {
	if len(regions) == 0 {
		return "none"
	}
	return strings.Join(regions, ", ")
}
