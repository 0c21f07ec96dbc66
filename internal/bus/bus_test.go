package bus

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
	"github.com/alanyoungcy/hedgebot/internal/orchestrator"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memBus is an in-process SignalBus.
type memBus struct {
	mu         sync.Mutex
	published  map[string][][]byte
	streams    map[string][][]byte
	subs       map[string]chan []byte
	subscribed int
	publishErr error
}

func newMemBus() *memBus {
	return &memBus{
		published: make(map[string][][]byte),
		streams:   make(map[string][][]byte),
		subs:      make(map[string]chan []byte),
	}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published[channel] = append(b.published[channel], payload)
	if ch, ok := b.subs[channel]; ok {
		ch <- payload
	}
	return nil
}

func (b *memBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 16)
	b.subs[channel] = ch
	b.subscribed++
	return ch, nil
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

// drop closes the live subscription as a broken connection would.
func (b *memBus) drop(channel string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[channel]; ok {
		close(ch)
		delete(b.subs, channel)
	}
}

func (b *memBus) subscriptions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subscribed
}

type recordingSubmitter struct {
	mu   sync.Mutex
	envs []domain.Envelope
	ids  []string
	err  error
}

func (r *recordingSubmitter) Submit(_ context.Context, orderID string, env domain.Envelope) (orchestrator.TaskHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return orchestrator.TaskHandle{}, r.err
	}
	r.envs = append(r.envs, env)
	r.ids = append(r.ids, orderID)
	return orchestrator.TaskHandle{ID: "task-1", OrderID: orderID, Type: env.Type}, nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

var channels = Channels{Commands: "hedge:commands", Events: "hedge:events", EventLog: "hedge:events:log"}

func TestPublisherEmitsEnvelope(t *testing.T) {
	b := newMemBus()
	p := NewPublisher(b, channels, "hedgebot-1", discardLogger())

	err := p.Emit(context.Background(), domain.EvtSupplementOrder, map[string]any{"order_id": "o1", "retries": 2})
	require.NoError(t, err)

	require.Len(t, b.published["hedge:events"], 1)
	require.Len(t, b.streams["hedge:events:log"], 1)
	assert.Equal(t, b.published["hedge:events"][0], b.streams["hedge:events:log"][0])

	var env domain.Envelope
	require.NoError(t, json.Unmarshal(b.published["hedge:events"][0], &env))
	assert.Equal(t, domain.EvtSupplementOrder, env.Type)
	assert.Equal(t, "hedgebot-1", env.From)
	assert.JSONEq(t, `{"order_id":"o1","retries":2}`, string(env.Data))
}

func TestPublisherReportsPublishFailure(t *testing.T) {
	b := newMemBus()
	b.publishErr = errors.New("connection reset")
	p := NewPublisher(b, channels, "n", discardLogger())

	err := p.Emit(context.Background(), domain.EvtBalanceUpdate, struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	// The durable log still gets the frame.
	assert.Len(t, b.streams["hedge:events:log"], 1)
}

func TestEncodeRejectsUnencodableData(t *testing.T) {
	_, err := Encode("x", "n", make(chan int))
	assert.Error(t, err)
}

type failingSink struct{ calls int }

func (f *failingSink) Emit(context.Context, string, any) error {
	f.calls++
	return errors.New("sink down")
}

func TestFanoutTriesEverySink(t *testing.T) {
	b := newMemBus()
	bad := &failingSink{}
	f := Fanout{bad, nil, NewPublisher(b, Channels{Events: "e"}, "n", discardLogger())}

	err := f.Emit(context.Background(), "evt", 1)
	assert.ErrorContains(t, err, "sink down")
	assert.Equal(t, 1, bad.calls)
	assert.Len(t, b.published["e"], 1)
}

func frame(t *testing.T, typ string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(domain.Envelope{Type: typ, From: "dispatcher", Data: raw})
	require.NoError(t, err)
	return out
}

func TestHandleSubmitsKnownCommands(t *testing.T) {
	sub := &recordingSubmitter{}
	c := NewConsumer(newMemBus(), channels.Commands, sub, discardLogger())

	h, err := c.Handle(context.Background(), frame(t, domain.CmdBettingOrder, map[string]any{"order_id": "o7", "handler": "pin888"}))
	require.NoError(t, err)
	assert.Equal(t, "o7", h.OrderID)
	require.Equal(t, 1, sub.count())
	assert.Equal(t, "dispatcher", sub.envs[0].From)
}

func TestHandleRejectsBadFrames(t *testing.T) {
	sub := &recordingSubmitter{}
	c := NewConsumer(newMemBus(), channels.Commands, sub, discardLogger())

	_, err := c.Handle(context.Background(), []byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)

	_, err = c.Handle(context.Background(), frame(t, "reboot", map[string]any{}))
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)

	assert.Zero(t, sub.count())

	sub.err = errors.New("orchestrator: shutting down")
	_, err = c.Handle(context.Background(), frame(t, domain.CmdRequestBalance, map[string]any{"handler": "sbo"}))
	assert.ErrorContains(t, err, "shutting down")
}

func TestConsumerRunResubscribes(t *testing.T) {
	b := newMemBus()
	sub := &recordingSubmitter{}
	c := NewConsumer(b, channels.Commands, sub, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return b.subscriptions() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, b.Publish(ctx, channels.Commands, frame(t, domain.CmdStopCycle, map[string]any{"handler": "pin888"})))
	require.Eventually(t, func() bool { return sub.count() == 1 }, time.Second, time.Millisecond)

	b.drop(channels.Commands)
	require.Eventually(t, func() bool { return b.subscriptions() == 2 }, 3*time.Second, 5*time.Millisecond)
	require.NoError(t, b.Publish(ctx, channels.Commands, frame(t, domain.CmdStopCycle, map[string]any{"handler": "sbo"})))
	require.Eventually(t, func() bool { return sub.count() == 2 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestForwardPublishesOnCommandChannel(t *testing.T) {
	b := newMemBus()
	p := NewPublisher(b, Channels{Commands: "cmds", Events: "evts"}, "api", discardLogger())

	frame := []byte(`{"type":"cancel_order","from":"ui","data":{"handler":"sbo","order_id":"o7"}}`)
	h, err := p.Forward(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, "o7", h.OrderID)
	assert.Empty(t, h.ID)
	require.Len(t, b.published["cmds"], 1)
	assert.JSONEq(t, string(frame), string(b.published["cmds"][0]))

	_, err = p.Forward(context.Background(), []byte(`{"type":"nope"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidCommand)
	assert.Len(t, b.published["cmds"], 1)
}

func TestHandleDropsReplayedOrderFrames(t *testing.T) {
	sub := &recordingSubmitter{}
	c := NewConsumer(newMemBus(), channels.Commands, sub, discardLogger())
	f := frame(t, domain.CmdBetting, map[string]any{"order_id": "o9", "handler": "sbo"})

	_, err := c.Handle(context.Background(), f)
	require.NoError(t, err)
	_, err = c.Handle(context.Background(), f)
	assert.ErrorIs(t, err, ErrDuplicateCommand)
	assert.Equal(t, 1, sub.count())

	balance := frame(t, domain.CmdRequestBalance, map[string]any{"handler": "sbo"})
	for range 2 {
		_, err = c.Handle(context.Background(), balance)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, sub.count())
}

func TestDedupExpires(t *testing.T) {
	d := NewDedup(time.Second)
	now := time.Unix(100, 0)
	d.now = func() time.Time { return now }

	assert.False(t, d.Seen([]byte("a")))
	assert.True(t, d.Seen([]byte("a")))
	now = now.Add(time.Second)
	assert.False(t, d.Seen([]byte("a")))
	assert.Len(t, d.seen, 1)
}
