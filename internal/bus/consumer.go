package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/orchestrator"
)

// resubscribeDelay is the pause before re-subscribing after the command
// subscription drops.
const resubscribeDelay = time.Second

// ErrDuplicateCommand is returned for an order command replayed within the
// dedup window.
var ErrDuplicateCommand = errors.New("duplicate command")

// Submitter starts a task for one command.
type Submitter interface {
	Submit(ctx context.Context, orderID string, env domain.Envelope) (orchestrator.TaskHandle, error)
}

// Consumer subscribes to the command channel and submits every recognised
// envelope as a task.
type Consumer struct {
	bus     domain.SignalBus
	channel string
	tasks   Submitter
	dedup   *Dedup
	logger  *slog.Logger
}

// NewConsumer creates a Consumer.
func NewConsumer(bus domain.SignalBus, channel string, tasks Submitter, logger *slog.Logger) *Consumer {
	return &Consumer{
		bus:     bus,
		channel: channel,
		tasks:   tasks,
		dedup:   NewDedup(dedupTTL),
		logger:  logger.With(slog.String("component", "bus_consumer")),
	}
}

// Run consumes commands until ctx ends, re-subscribing when the
// subscription drops.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("command consumer started", slog.String("channel", c.channel))
	defer c.logger.Info("command consumer stopped")

	for {
		ch, err := c.bus.Subscribe(ctx, c.channel)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("subscribe failed", slog.String("error", err.Error()))
		} else {
			c.drain(ctx, ch)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t := time.NewTimer(resubscribeDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Consumer) drain(ctx context.Context, ch <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			if _, err := c.Handle(ctx, frame); err != nil {
				c.logger.Warn("command dropped",
					slog.String("error", err.Error()),
					slog.Int("payload_len", len(frame)),
				)
			}
		}
	}
}

// Handle decodes one frame and submits it. Frames of unknown type are
// rejected without starting a task. A replayed frame carrying an order_id is
// rejected with ErrDuplicateCommand.
func (c *Consumer) Handle(ctx context.Context, frame []byte) (orchestrator.TaskHandle, error) {
	var env domain.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return orchestrator.TaskHandle{}, fmt.Errorf("bus: decode frame: %v: %w", err, domain.ErrInvalidCommand)
	}
	if !orchestrator.Known(env.Type) {
		return orchestrator.TaskHandle{}, fmt.Errorf("bus: command %q: %w", env.Type, domain.ErrInvalidCommand)
	}
	orderID := orchestrator.OrderID(env)
	if orderID != "" && c.dedup.Seen(frame) {
		return orchestrator.TaskHandle{}, fmt.Errorf("bus: command %q for order %s: %w", env.Type, orderID, ErrDuplicateCommand)
	}
	h, err := c.tasks.Submit(ctx, orderID, env)
	if err != nil {
		return orchestrator.TaskHandle{}, fmt.Errorf("bus: submit %s: %w", env.Type, err)
	}
	c.logger.DebugContext(ctx, "command accepted",
		slog.String("type", env.Type),
		slog.String("from", env.From),
		slog.String("task_id", h.ID),
		slog.String("order_id", h.OrderID),
	)
	return h, nil
}
