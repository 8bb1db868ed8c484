package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultSessionDuration is 7 days
	DefaultSessionDuration = 7 * 24 * time.Hour

	sessionKeyPrefix       = "session:"
	sessionEventsKeyPrefix = "session:events:"
)

// SessionStore maps opaque session tokens to user IDs in Redis.
type SessionStore struct {
	client   *redis.Client
	duration time.Duration
}

func NewSessionStore(client *redis.Client, duration time.Duration) *SessionStore {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	return &SessionStore{client: client, duration: duration}
}

// Create stores a new session for userID and returns its token.
func (s *SessionStore) Create(ctx context.Context, userID string) (string, error) {
	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	token := base64.URLEncoding.EncodeToString(tokenBytes)

	if err := s.client.Set(ctx, sessionKeyPrefix+token, userID, s.duration).Err(); err != nil {
		return "", fmt.Errorf("failed to store session: %w", err)
	}
	return token, nil
}

// Lookup returns the user ID of a session, or "" when the token is unknown or expired.
func (s *SessionStore) Lookup(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", nil
	}
	userID, err := s.client.Get(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session: %w", err)
	}
	return userID, nil
}

// Delete removes the session and notifies every watcher of the token.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := s.client.Publish(ctx, sessionEventsKeyPrefix+token, "signed_out").Err(); err != nil {
		return fmt.Errorf("failed to publish sign out: %w", err)
	}
	return nil
}

// Events subscribes to sign out events of token. The returned channel receives a
// value per event and is closed once ctx is done.
func (s *SessionStore) Events(ctx context.Context, token string) (<-chan struct{}, error) {
	pubsub := s.client.Subscribe(ctx, sessionEventsKeyPrefix+token)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}

	events := make(chan struct{}, 1)
	go func() {
		defer close(events)
		defer func() {
			_ = pubsub.Close()
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
				select {
				case events <- struct{}{}:
				default:
				}
			}
		}
	}()
	return events, nil
}
