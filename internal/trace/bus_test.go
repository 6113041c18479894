package trace

import (
	"bytes"
	"errors"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/rxsink/internal/core"
)

type closingObserver struct {
	seen   int
	closed bool
	err    error
}

func (c *closingObserver) Observe(Event) { c.seen++ }

func (c *closingObserver) Close() error {
	c.closed = true
	return c.err
}

func sampleEvent() Event {
	return Event{
		Sink:   "R",
		Time:   1500 * time.Millisecond,
		Packet: core.Packet{Payload: make([]byte, 42)},
		From:   netip.MustParseAddrPort("10.0.0.1:4000"),
	}
}

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	require.NoError(t, bus.Subscribe("b", ObserverFunc(func(Event) { order = append(order, "b") })))
	require.NoError(t, bus.Subscribe("a", ObserverFunc(func(Event) { order = append(order, "a") })))

	bus.Publish(sampleEvent())

	assert.Equal(t, []string{"b", "a"}, order)
	assert.Equal(t, Stats{Published: 1, Delivered: 2, Subscribers: 2}, bus.Stats())
	assert.Equal(t, []string{"a", "b"}, bus.Observers())
}

func TestBusReplaceAndUnsubscribe(t *testing.T) {
	bus := NewBus()
	first, second := 0, 0
	require.NoError(t, bus.Subscribe("x", ObserverFunc(func(Event) { first++ })))
	require.NoError(t, bus.Subscribe("x", ObserverFunc(func(Event) { second++ })))
	bus.Publish(sampleEvent())
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)

	assert.True(t, bus.Unsubscribe("x"))
	assert.False(t, bus.Unsubscribe("x"))
	bus.Publish(sampleEvent())
	assert.Equal(t, 1, second)
}

func TestBusCloseClosesObservers(t *testing.T) {
	bus := NewBus()
	ok := &closingObserver{}
	bad := &closingObserver{err: errors.New("flush failed")}
	require.NoError(t, bus.Subscribe("ok", ok))
	require.NoError(t, bus.Subscribe("bad", bad))

	err := bus.Close()
	assert.ErrorContains(t, err, "flush failed")
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)

	bus.Publish(sampleEvent())
	assert.Zero(t, ok.seen)
	assert.Error(t, bus.Subscribe("late", ok))
	assert.NoError(t, bus.Close())
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	NewLogObserver(l).Observe(sampleEvent())
	out := buf.String()
	assert.Contains(t, out, "sink=R")
	assert.Contains(t, out, "bytes=42")
	assert.Contains(t, out, "from=10.0.0.1:4000")

	buf.Reset()
	quiet := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	NewLogObserver(quiet).Observe(sampleEvent())
	assert.Empty(t, buf.String())
}
