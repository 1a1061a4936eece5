// Agentstream - Real-time Agent Event Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/agentstream

package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

// flakyBus fails the first failures Subscribe calls, then delegates.
type flakyBus struct {
	*MemoryBus
	failures atomic.Int32
	attempts atomic.Int32
}

func (b *flakyBus) Subscribe(ctx context.Context, patterns ...Pattern) (<-chan Delivery, error) {
	b.attempts.Add(1)
	if b.failures.Add(-1) >= 0 {
		return nil, errors.New("connection refused")
	}
	return b.MemoryBus.Subscribe(ctx, patterns...)
}

type collector struct {
	mu   sync.Mutex
	got  []Delivery
	recv chan struct{}
}

func newCollector() *collector {
	return &collector{recv: make(chan struct{}, 64)}
}

func (c *collector) DispatchBusMessage(channel string, payload []byte) {
	c.mu.Lock()
	c.got = append(c.got, Delivery{Channel: channel, Payload: payload})
	c.mu.Unlock()
	c.recv <- struct{}{}
}

func (c *collector) wait(t *testing.T) {
	t.Helper()
	select {
	case <-c.recv:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSubscriber_DispatchesDeliveries(t *testing.T) {
	mb := NewMemory(Config{})
	defer mb.Close()
	c := newCollector()
	s := NewSubscriber(mb, c, SubscriberConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	waitFor(t, s.Connected, "subscriber never connected")
	if err := mb.Publish(ctx, ExecutionChannel("exec-1"), []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	c.wait(t)

	c.mu.Lock()
	got := c.got[0]
	c.mu.Unlock()
	if got.Channel != "execution:exec-1" || string(got.Payload) != `{"a":1}` {
		t.Errorf("dispatched %s %s", got.Channel, got.Payload)
	}
	if s.Received() != 1 {
		t.Errorf("Received() = %d", s.Received())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if s.Connected() {
		t.Error("Connected() should be false after Serve returns")
	}
}

func TestSubscriber_RetriesWithBackoff(t *testing.T) {
	fb := &flakyBus{MemoryBus: NewMemory(Config{})}
	defer fb.Close()
	fb.failures.Store(3)

	c := newCollector()
	s := NewSubscriber(fb, c, SubscriberConfig{
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Serve(ctx) }()

	waitFor(t, s.Connected, "subscriber never recovered")
	if n := fb.attempts.Load(); n != 4 {
		t.Errorf("subscribe attempts = %d, want 4", n)
	}

	if err := fb.Publish(ctx, ConversationChannel("conv-1"), []byte("x")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	c.wait(t)
}

func TestSubscriber_ClosedBusStopsPermanently(t *testing.T) {
	mb := NewMemory(Config{})
	_ = mb.Close()

	s := NewSubscriber(mb, newCollector(), SubscriberConfig{})
	err := s.Serve(context.Background())
	if !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("Serve on closed bus = %v, want ErrDoNotRestart", err)
	}
}

func TestSubscriber_RecoversFromDispatcherPanic(t *testing.T) {
	mb := NewMemory(Config{})
	defer mb.Close()

	var calls atomic.Int32
	got := make(chan string, 4)
	d := DispatcherFunc(func(channel string, _ []byte) {
		if calls.Add(1) == 1 {
			panic("listener bug")
		}
		got <- channel
	})
	s := NewSubscriber(mb, d, SubscriberConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Serve(ctx) }()
	waitFor(t, s.Connected, "subscriber never connected")

	_ = mb.Publish(ctx, ExecutionChannel("e1"), []byte("1"))
	_ = mb.Publish(ctx, ExecutionChannel("e2"), []byte("2"))

	select {
	case ch := <-got:
		if ch != "execution:e2" {
			t.Errorf("dispatched %q, want execution:e2", ch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch after panic never happened")
	}
}

func TestSubscriber_String(t *testing.T) {
	s := NewSubscriber(NewMemory(Config{}), newCollector(), SubscriberConfig{})
	if s.String() != "bus-subscriber" {
		t.Errorf("String() = %q", s.String())
	}
	if len(s.patterns) != len(DefaultPatterns()) {
		t.Errorf("default patterns = %v", s.patterns)
	}
	if s.initial != 100*time.Millisecond || s.max != 5*time.Second {
		t.Errorf("default backoff = %v..%v", s.initial, s.max)
	}
}
