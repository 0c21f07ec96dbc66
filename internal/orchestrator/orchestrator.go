// Package orchestrator turns inbound commands into isolated tasks, one
// goroutine each, and reports their outcome as outbound events.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/hedgebot/internal/config"
	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/engine"
	"github.com/alanyoungcy/hedgebot/internal/session"
	"github.com/alanyoungcy/hedgebot/internal/venue"
)

// resultTTL bounds how long an unconsumed result is kept.
const resultTTL = time.Hour

// TaskState is what Poll reports.
type TaskState string

const (
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
)

// TaskHandle identifies a submitted task.
type TaskHandle struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	Type      string    `json:"type"`
	StartedAt time.Time `json:"started_at"`
}

// Result is a finished task's outcome. Value holds the engine result for
// the command, Error is set when the task aborted.
type Result struct {
	TaskID     string    `json:"task_id"`
	OrderID    string    `json:"order_id"`
	Type       string    `json:"type"`
	Value      any       `json:"value,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Status is a Poll answer.
type Status struct {
	State  TaskState `json:"state"`
	Result *Result   `json:"result,omitempty"`
}

// Orchestrator runs one task per inbound command.
type Orchestrator struct {
	registry   *session.Registry
	engine     *engine.Engine
	automation *config.Automation
	sink       EventSink
	balances   domain.BalanceCache
	logger     *slog.Logger

	// base outlives Submit callers; Shutdown cancels it.
	base   context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	active      map[string]TaskHandle
	done        map[string]Result
	descriptors map[string]venue.Descriptor
	closed      bool

	wg sync.WaitGroup
}

// New creates an Orchestrator and registers it for the engine's balance
// updates.
func New(
	registry *session.Registry,
	eng *engine.Engine,
	automation *config.Automation,
	sink EventSink,
	logger *slog.Logger,
) *Orchestrator {
	base, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		registry:    registry,
		engine:      eng,
		automation:  automation,
		sink:        sink,
		logger:      logger.With(slog.String("component", "orchestrator")),
		base:        base,
		cancel:      cancel,
		active:      make(map[string]TaskHandle),
		done:        make(map[string]Result),
		descriptors: make(map[string]venue.Descriptor),
	}
	eng.OnBalance(o.publishBalance)
	return o
}

// SetBalanceCache mirrors every balance update into c.
func (o *Orchestrator) SetBalanceCache(c domain.BalanceCache) {
	o.balances = c
}

// SetDescriptor registers a statically configured handler so its session can
// be built on first use.
func (o *Orchestrator) SetDescriptor(handler string, d venue.Descriptor) {
	o.mu.Lock()
	o.descriptors[handler] = d
	o.mu.Unlock()
}

// Submit starts a task for env. The task runs until it finishes or the
// orchestrator shuts down; ctx only bounds the submission itself.
func (o *Orchestrator) Submit(ctx context.Context, orderID string, env domain.Envelope) (TaskHandle, error) {
	if err := ctx.Err(); err != nil {
		return TaskHandle{}, err
	}
	if !Known(env.Type) {
		return TaskHandle{}, fmt.Errorf("orchestrator: submit %q: %w", env.Type, domain.ErrInvalidCommand)
	}

	h := TaskHandle{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Type:      env.Type,
		StartedAt: time.Now().UTC(),
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return TaskHandle{}, errors.New("orchestrator: shutting down")
	}
	o.purgeLocked(h.StartedAt)
	o.active[h.ID] = h
	o.wg.Add(1)
	o.mu.Unlock()

	go o.run(h, env)

	o.logger.DebugContext(ctx, "task submitted",
		slog.String("task_id", h.ID),
		slog.String("type", env.Type),
		slog.String("order_id", orderID),
		slog.String("from", env.From),
	)
	return h, nil
}

// Poll reports a task's state. A completed result is handed out exactly
// once; later polls return domain.ErrNotFound.
func (o *Orchestrator) Poll(taskID string) (Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.active[taskID]; ok {
		return Status{State: TaskRunning}, nil
	}
	if res, ok := o.done[taskID]; ok {
		delete(o.done, taskID)
		return Status{State: TaskCompleted, Result: &res}, nil
	}
	return Status{}, fmt.Errorf("orchestrator: task %s: %w", taskID, domain.ErrNotFound)
}

// Active returns the number of running tasks.
func (o *Orchestrator) Active() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// Shutdown stops accepting work, cancels running tasks and waits for them
// and for pending balance refreshes, or until ctx ends.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.cancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		o.engine.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("orchestrator: shutdown: %w", ctx.Err())
	}
}

func (o *Orchestrator) run(h TaskHandle, env domain.Envelope) {
	res := Result{TaskID: h.ID, OrderID: h.OrderID, Type: h.Type, StartedAt: h.StartedAt}
	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("panic: %v", r)
			o.logger.Error("task panicked",
				slog.String("task_id", h.ID),
				slog.String("type", h.Type),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		res.FinishedAt = time.Now().UTC()
		o.mu.Lock()
		delete(o.active, h.ID)
		o.done[h.ID] = res
		o.mu.Unlock()
		o.wg.Done()
	}()

	value, err := o.dispatch(o.base, env)
	res.Value = value
	if err != nil {
		res.Error = err.Error()
		o.logger.Warn("task failed",
			slog.String("task_id", h.ID),
			slog.String("type", h.Type),
			slog.String("order_id", h.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) purgeLocked(now time.Time) {
	for id, r := range o.done {
		if now.Sub(r.FinishedAt) > resultTTL {
			delete(o.done, id)
		}
	}
}

// session finds handler's session, building it from a known descriptor when
// none is live.
func (o *Orchestrator) session(ctx context.Context, handler string) (*session.Session, error) {
	if s := o.registry.Get(handler); s != nil && !s.Broken() {
		return s, nil
	}
	desc, ok := o.descriptor(handler)
	if !ok {
		if s := o.registry.Get(handler); s != nil {
			desc = s.Descriptor()
		} else {
			return nil, fmt.Errorf("orchestrator: %s: %w", handler, domain.ErrSessionNotFound)
		}
	}
	return o.registry.Ensure(ctx, handler, desc)
}

func (o *Orchestrator) descriptor(handler string) (venue.Descriptor, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	d, ok := o.descriptors[handler]
	return d, ok
}

func (o *Orchestrator) emit(ctx context.Context, eventType string, data any) {
	if o.sink == nil {
		return
	}
	// Events still go out while shutting down.
	ctx = context.WithoutCancel(ctx)
	if err := o.sink.Emit(ctx, eventType, data); err != nil {
		o.logger.Warn("emit event failed",
			slog.String("event", eventType),
			slog.String("error", err.Error()),
		)
	}
}

func (o *Orchestrator) publishBalance(ctx context.Context, handler string, bal decimal.Decimal) {
	now := time.Now().UTC()
	if o.balances != nil {
		if err := o.balances.SetBalance(ctx, handler, bal, now); err != nil {
			o.logger.Warn("cache balance failed",
				slog.String("handler", handler),
				slog.String("error", err.Error()),
			)
		}
	}
	o.emit(ctx, domain.EvtBalanceUpdate, BalanceEvent{Handler: handler, Success: true, Balance: bal, At: now})
}
