package core

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jo-hoe/refshelf/internal/backend/auth"
	"github.com/jo-hoe/refshelf/internal/backend/database"
)

type GateStatus int

const (
	GateLoading GateStatus = iota
	GateSignedOut
	GateSignedIn
)

func (s GateStatus) String() string {
	switch s {
	case GateSignedOut:
		return "signed-out"
	case GateSignedIn:
		return "signed-in"
	default:
		return "loading"
	}
}

// AuthWatcher streams the authentication state of a session.
type AuthWatcher interface {
	Watch(ctx context.Context, token string) (<-chan auth.State, error)
}

// SessionGate decides between the loading view, the sign in view and the
// dashboard. It stays loading until the first authentication notification; if
// subscribing fails it stays loading for good.
type SessionGate struct {
	auth AuthWatcher

	mu       sync.Mutex
	status   GateStatus
	user     *database.User
	cancel   context.CancelFunc
	onChange func(GateStatus, *database.User)

	ready     chan struct{}
	readyOnce sync.Once
}

func NewSessionGate(auth AuthWatcher) *SessionGate {
	return &SessionGate{auth: auth, ready: make(chan struct{})}
}

// OnChange registers fn to run after every notification. Call it before Start.
func (g *SessionGate) OnChange(fn func(GateStatus, *database.User)) {
	g.mu.Lock()
	g.onChange = fn
	g.mu.Unlock()
}

func (g *SessionGate) Start(ctx context.Context, token string) {
	ctx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()

	states, err := g.auth.Watch(ctx, token)
	if err != nil {
		slog.Error("SessionGate: failed to watch authentication state", "error", err)
		return
	}

	go func() {
		for state := range states {
			g.mu.Lock()
			if state.User == nil {
				g.status, g.user = GateSignedOut, nil
			} else {
				g.status, g.user = GateSignedIn, state.User
			}
			status, user, onChange := g.status, g.user, g.onChange
			g.mu.Unlock()

			g.readyOnce.Do(func() { close(g.ready) })
			if onChange != nil {
				onChange(status, user)
			}
		}
	}()
}

// Wait blocks until the first notification arrived or ctx is done and returns the status.
func (g *SessionGate) Wait(ctx context.Context) GateStatus {
	select {
	case <-g.ready:
	case <-ctx.Done():
	}
	status, _ := g.Status()
	return status
}

func (g *SessionGate) Status() (GateStatus, *database.User) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status, g.user
}

// Stop unsubscribes from authentication notifications.
func (g *SessionGate) Stop() {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
