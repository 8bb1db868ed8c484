package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jo-hoe/refshelf/internal/backend/auth"
	"github.com/jo-hoe/refshelf/internal/backend/database"
)

type fakeWatcher struct {
	states chan auth.State
	err    error
	token  string
}

func (f *fakeWatcher) Watch(ctx context.Context, token string) (<-chan auth.State, error) {
	f.token = token
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan auth.State)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case state := <-f.states:
				select {
				case out <- state:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func TestSessionGate_LoadingUntilFirstNotification(t *testing.T) {
	watcher := &fakeWatcher{states: make(chan auth.State)}
	gate := NewSessionGate(watcher)

	var mu sync.Mutex
	var seen []GateStatus
	gate.OnChange(func(status GateStatus, _ *database.User) {
		mu.Lock()
		seen = append(seen, status)
		mu.Unlock()
	})
	gate.Start(context.Background(), "tok")
	defer gate.Stop()

	if watcher.token != "tok" {
		t.Fatalf("Expected watch of tok, got %q", watcher.token)
	}
	if status, _ := gate.Status(); status != GateLoading {
		t.Fatalf("Expected loading, got %v", status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if status := gate.Wait(ctx); status != GateLoading {
		t.Fatalf("Expected Wait to give up while loading, got %v", status)
	}

	user := &database.User{ID: "u1", Email: "a@b.c"}
	watcher.states <- auth.State{User: user}
	if status := gate.Wait(context.Background()); status != GateSignedIn {
		t.Fatalf("Expected signed in, got %v", status)
	}
	if _, got := gate.Status(); got != user {
		t.Fatalf("Expected the signed in user")
	}

	watcher.states <- auth.State{}
	waitFor(t, func() bool {
		status, user := gate.Status()
		return status == GateSignedOut && user == nil
	})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2 && seen[0] == GateSignedIn && seen[1] == GateSignedOut
	})
}

func TestSessionGate_WatchFailureStaysLoading(t *testing.T) {
	gate := NewSessionGate(&fakeWatcher{err: errBackend})
	gate.Start(context.Background(), "tok")
	defer gate.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if status := gate.Wait(ctx); status != GateLoading {
		t.Fatalf("Expected loading, got %v", status)
	}
}

func TestGateStatus_String(t *testing.T) {
	tests := map[GateStatus]string{
		GateLoading:   "loading",
		GateSignedOut: "signed-out",
		GateSignedIn:  "signed-in",
	}
	for status, want := range tests {
		if got := status.String(); got != want {
			t.Fatalf("Expected %q, got %q", want, got)
		}
	}
}
