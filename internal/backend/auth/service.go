package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jo-hoe/refshelf/internal/backend/database"
)

const minPasswordLength = 8

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
)

// State is one authentication notification. A nil User means signed out.
type State struct {
	User *database.User
}

type Service struct {
	users    database.UserStore
	sessions *SessionStore
}

func NewService(users database.UserStore, sessions *SessionStore) *Service {
	return &Service{users: users, sessions: sessions}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) SignUp(ctx context.Context, email, password string) (*database.User, error) {
	email = normalizeEmail(email)
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.users.CreateUser(ctx, email, hash)
}

// SignIn verifies the credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, email, password string) (string, *database.User, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", nil, err
	}
	if user == nil {
		return "", nil, ErrInvalidCredentials
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		slog.Error("auth: stored password hash is unreadable", "user_id", user.ID, "error", err)
		return "", nil, ErrInvalidCredentials
	}
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *Service) SignOut(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// CurrentUser returns the user of a session, or nil when token is not signed in.
func (s *Service) CurrentUser(ctx context.Context, token string) (*database.User, error) {
	userID, err := s.sessions.Lookup(ctx, token)
	if err != nil || userID == "" {
		return nil, err
	}
	return s.users.GetUserByID(ctx, userID)
}

// Watch reports the authentication state of a session. The current state is
// delivered first; a signed out state follows when the session ends elsewhere.
// The channel is closed once ctx is done.
func (s *Service) Watch(ctx context.Context, token string) (<-chan State, error) {
	ctx, cancel := context.WithCancel(ctx)
	events, err := s.sessions.Events(ctx, token)
	if err != nil {
		cancel()
		return nil, err
	}
	user, err := s.CurrentUser(ctx, token)
	if err != nil {
		cancel()
		return nil, err
	}

	states := make(chan State, 1)
	go func() {
		defer close(states)
		defer cancel()

		state := State{User: user}
		for {
			select {
			case states <- state:
			case <-ctx.Done():
				return
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				state = State{}
			}
		}
	}()
	return states, nil
}
