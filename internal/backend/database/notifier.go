package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

const entriesChangedChannelPrefix = "entries:changed:"

// ChangeNotifier signals that the entries of an owner changed.
// Subscribers receive coalesced notifications: a pending signal is never duplicated.
type ChangeNotifier interface {
	Publish(ctx context.Context, ownerID string) error
	// Subscribe returns a channel that receives a value after each change of ownerID's entries.
	// The channel is closed once ctx is done.
	Subscribe(ctx context.Context, ownerID string) (<-chan struct{}, error)
	Close() error
}

func NewChangeNotifier(notifierType string, redisClient *redis.Client) (ChangeNotifier, error) {
	switch notifierType {
	case "", "memory":
		return NewMemoryNotifier(), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("redis notifier requires a redis client")
		}
		return NewRedisNotifier(redisClient), nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %s", notifierType)
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// MemoryNotifier fans out change signals inside a single process.
type MemoryNotifier struct {
	mu          sync.Mutex
	subscribers map[string]map[chan struct{}]struct{}
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{subscribers: make(map[string]map[chan struct{}]struct{})}
}

func (n *MemoryNotifier) Publish(_ context.Context, ownerID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subscribers[ownerID] {
		signal(ch)
	}
	return nil
}

func (n *MemoryNotifier) Subscribe(ctx context.Context, ownerID string) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	n.mu.Lock()
	if n.subscribers[ownerID] == nil {
		n.subscribers[ownerID] = make(map[chan struct{}]struct{})
	}
	n.subscribers[ownerID][ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.subscribers[ownerID], ch)
		if len(n.subscribers[ownerID]) == 0 {
			delete(n.subscribers, ownerID)
		}
		close(ch)
		n.mu.Unlock()
	}()

	return ch, nil
}

func (n *MemoryNotifier) Close() error {
	return nil
}

// RedisNotifier distributes change signals over Redis Pub/Sub so that every
// instance sharing the database sees writes made by the others.
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, ownerID string) error {
	if err := n.client.Publish(ctx, entriesChangedChannelPrefix+ownerID, "changed").Err(); err != nil {
		return fmt.Errorf("failed to publish entry change: %w", err)
	}
	return nil
}

func (n *RedisNotifier) Subscribe(ctx context.Context, ownerID string) (<-chan struct{}, error) {
	pubsub := n.client.Subscribe(ctx, entriesChangedChannelPrefix+ownerID)
	// Wait for the subscription confirmation so no publish after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to entry changes: %w", err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer func() {
			if err := pubsub.Close(); err != nil {
				slog.Debug("RedisNotifier: failed to close subscription", "owner_id", ownerID, "error", err)
			}
		}()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				signal(ch)
			}
		}
	}()

	return ch, nil
}

func (n *RedisNotifier) Close() error {
	return nil
}
