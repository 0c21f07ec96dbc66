// Package bus connects the orchestrator to the dispatcher's message bus:
// Consumer turns inbound command frames into tasks and Publisher turns
// outbound events into frames.
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

// Sink receives outbound events. It has the same method set as
// orchestrator.EventSink.
type Sink interface {
	Emit(ctx context.Context, eventType string, data any) error
}

// Channels names the bus endpoints.
type Channels struct {
	Commands string
	Events   string
	// EventLog is the durable stream every event is appended to. Empty
	// disables the log.
	EventLog string
}

// Publisher encodes events as envelopes on the event channel.
type Publisher struct {
	bus    domain.SignalBus
	ch     Channels
	from   string
	logger *slog.Logger
}

// NewPublisher creates a Publisher that signs envelopes with node as From.
func NewPublisher(bus domain.SignalBus, ch Channels, node string, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:    bus,
		ch:     ch,
		from:   node,
		logger: logger.With(slog.String("component", "bus_publisher")),
	}
}

// Encode builds the wire frame for one event.
func Encode(eventType, from string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("bus: encode %s: %w", eventType, err)
	}
	frame, err := json.Marshal(domain.Envelope{Type: eventType, From: from, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("bus: encode %s: %w", eventType, err)
	}
	return frame, nil
}

// Emit publishes the event and appends it to the event log. A failed log
// append does not hide a successful publish from the caller's error.
func (p *Publisher) Emit(ctx context.Context, eventType string, data any) error {
	frame, err := Encode(eventType, p.from, data)
	if err != nil {
		return err
	}

	var errs []error
	if err := p.bus.Publish(ctx, p.ch.Events, frame); err != nil {
		errs = append(errs, err)
	}
	if p.ch.EventLog != "" {
		if err := p.bus.StreamAppend(ctx, p.ch.EventLog, frame); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("bus: emit %s: %w", eventType, err)
	}
	p.logger.DebugContext(ctx, "event published",
		slog.String("type", eventType),
		slog.Int("bytes", len(frame)),
	)
	return nil
}

// Fanout delivers every event to each sink in order. All sinks are tried;
// the errors are joined.
type Fanout []Sink

// Emit implements Sink.
func (f Fanout) Emit(ctx context.Context, eventType string, data any) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, eventType, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Forward validates a command frame and publishes it on the command
// channel for whichever node runs the engine. The returned handle has no
// task id; the remote node assigns one.
func (p *Publisher) Forward(ctx context.Context, frame []byte) (orchestrator.TaskHandle, error) {
	var env domain.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return orchestrator.TaskHandle{}, fmt.Errorf("bus: decode frame: %v: %w", err, domain.ErrInvalidCommand)
	}
	if !orchestrator.Known(env.Type) {
		return orchestrator.TaskHandle{}, fmt.Errorf("bus: command %q: %w", env.Type, domain.ErrInvalidCommand)
	}
	if err := p.bus.Publish(ctx, p.ch.Commands, frame); err != nil {
		return orchestrator.TaskHandle{}, fmt.Errorf("bus: forward %s: %w", env.Type, err)
	}
	p.logger.DebugContext(ctx, "command forwarded", slog.String("type", env.Type))
	return orchestrator.TaskHandle{
		OrderID:   orchestrator.OrderID(env),
		Type:      env.Type,
		StartedAt: time.Now().UTC(),
	}, nil
}
