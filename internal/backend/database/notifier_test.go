package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func expectSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case _, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed, expected a signal")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for signal")
	}
}

func expectNoSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("unexpected signal")
	case <-time.After(100 * time.Millisecond):
	}
}

func expectClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("channel not closed")
		}
	}
}

func TestMemoryNotifier_PublishSubscribe(t *testing.T) {
	n := NewMemoryNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := n.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	other, err := n.Subscribe(ctx, "u2")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}

	if err := n.Publish(ctx, "u1"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	expectSignal(t, ch)
	expectNoSignal(t, other)
}

func TestMemoryNotifier_Coalesces(t *testing.T) {
	n := NewMemoryNotifier()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := n.Subscribe(ctx, "u1")
	for i := 0; i < 5; i++ {
		_ = n.Publish(ctx, "u1")
	}
	expectSignal(t, ch)
	expectNoSignal(t, ch)
}

func TestMemoryNotifier_CancelClosesAndUnsubscribes(t *testing.T) {
	n := NewMemoryNotifier()
	ctx, cancel := context.WithCancel(context.Background())

	ch, _ := n.Subscribe(ctx, "u1")
	cancel()
	expectClosed(t, ch)

	// publishing after unsubscribe must not panic on the closed channel
	if err := n.Publish(context.Background(), "u1"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	n.mu.Lock()
	remaining := len(n.subscribers)
	n.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected no subscribers left, got %d", remaining)
	}
}

func TestRedisNotifier_PublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	n, err := NewChangeNotifier("redis", client)
	if err != nil {
		t.Fatalf("NewChangeNotifier error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := n.Subscribe(ctx, "u1")
	if err != nil {
		t.Fatalf("Subscribe error: %v", err)
	}
	if err := n.Publish(ctx, "u1"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	expectSignal(t, ch)

	if err := n.Publish(ctx, "u2"); err != nil {
		t.Fatalf("Publish error: %v", err)
	}
	expectNoSignal(t, ch)

	cancel()
	expectClosed(t, ch)
}

func TestNewChangeNotifier(t *testing.T) {
	tests := []struct {
		name    string
		typ     string
		wantErr bool
	}{
		{"default", "", false},
		{"memory", "memory", false},
		{"redis without client", "redis", true},
		{"unknown", "kafka", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChangeNotifier(tt.typ, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewChangeNotifier(%q) error = %v, wantErr %v", tt.typ, err, tt.wantErr)
			}
		})
	}
}
