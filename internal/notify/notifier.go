// Package notify forwards selected engine events to operator chat channels.
// Events are queued and delivered by a background worker so a slow webhook
// never holds up an order task.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// queueSize bounds undelivered notifications. Overflow is dropped.
const queueSize = 64

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type note struct {
	title, message string
}

// Notifier filters events by type and fans them out to every sender. It
// satisfies the orchestrator's event sink.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	queue   chan note
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. Only event types listed in events are
// delivered; an empty list delivers everything.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		queue:   make(chan note, queueSize),
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return len(n.senders) > 0
}

// Emit queues a notification for an allowed event. It never blocks.
func (n *Notifier) Emit(ctx context.Context, eventType string, data any) error {
	if !n.Enabled() || (len(n.events) > 0 && !n.events[eventType]) {
		return nil
	}
	title, message := Format(eventType, data)
	select {
	case n.queue <- note{title: title, message: message}:
	default:
		n.logger.WarnContext(ctx, "notification dropped, queue full", slog.String("event", eventType))
	}
	return nil
}

// Run delivers queued notifications until ctx ends.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m := <-n.queue:
			if err := n.dispatch(ctx, m.title, m.message); err != nil {
				n.logger.Warn("notification failed", slog.String("error", err.Error()))
			}
		}
	}
}

// dispatch sends to every sender; one failure does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %w", errors.Join(errs...))
	}
	return nil
}

var titles = map[string]string{
	"supplement_order":        "Supplementary bet placed",
	"supplement_order_failed": "Supplementary bet FAILED",
	"betting_result":          "Bet result",
	"order_status_update":     "Order status",
	"automation_config":       "Automation config changed",
	"balance_update":          "Balance",
}

// summaryKeys are rendered first, in this order, when present.
var summaryKeys = []string{
	"order_id", "handler", "opponent_handler", "outcome", "status", "success",
	"reason", "market", "price", "stake", "drop_pct", "retries", "attempts",
	"ticket_id", "balance", "message", "error",
}

// Format renders an event as a title and a "key: value" body.
func Format(eventType string, data any) (string, string) {
	title, ok := titles[eventType]
	if !ok {
		title = eventType
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return title, fmt.Sprintf("%v", data)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return title, string(raw)
	}

	var b strings.Builder
	for _, k := range summaryKeys {
		v, ok := fields[k]
		if !ok || v == nil || v == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	if b.Len() == 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %v\n", k, fields[k])
		}
	}
	return title, strings.TrimRight(b.String(), "\n")
}
