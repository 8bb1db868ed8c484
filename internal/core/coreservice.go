package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jo-hoe/refshelf/internal/backend"
	"github.com/jo-hoe/refshelf/internal/backend/auth"
	"github.com/jo-hoe/refshelf/internal/backend/blobstore"
	"github.com/jo-hoe/refshelf/internal/backend/clipboard"
	"github.com/jo-hoe/refshelf/internal/backend/database"
	"github.com/redis/go-redis/v9"
)

const fetchTimeout = 30 * time.Second

var ErrNotSignedIn = errors.New("not signed in")

// Dependencies are the collaborators of a CoreService.
type Dependencies struct {
	Client    *backend.Client
	Redis     *redis.Client
	Notifier  database.ChangeNotifier
	Fetcher   ImageFetcher
	Clipboard Clipboard
	Now       func() time.Time
}

type session struct {
	gate      *SessionGate
	dashboard *Dashboard
	lastSeen  time.Time
}

// CoreService owns the backend client and the per session state: one gate
// and at most one dashboard for every session token in use.
type CoreService struct {
	config *ServiceConfig
	deps   Dependencies

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
}

// NewCoreService connects to Redis, the document store and the blob store
// described by config.
func NewCoreService(ctx context.Context, config *ServiceConfig) (*CoreService, error) {
	redisOptions, err := redis.ParseURL(config.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	redisClient := redis.NewClient(redisOptions)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	notifier, err := database.NewChangeNotifier(config.Notifier.Type, redisClient)
	if err != nil {
		_ = redisClient.Close()
		return nil, err
	}

	documents, err := database.NewDatabase(ctx, config.Database.Type, config.Database.ConnectionString, config.Database.Name, notifier)
	if err != nil {
		_ = notifier.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)

	blobs, err := blobstore.NewBlobStore(blobstore.Options{
		Type:                config.BlobStore.Type,
		Path:                config.BlobStore.Path,
		Folder:              config.BlobStore.Folder,
		PublicURL:           config.PublicURL,
		CloudinaryCloudName: config.Cloudinary.CloudName,
		CloudinaryAPIKey:    config.Cloudinary.APIKey,
		CloudinaryAPISecret: config.Cloudinary.APISecret,
	})
	if err != nil {
		_ = documents.Close()
		_ = notifier.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to initialize blob store: %w", err)
	}

	sessions := auth.NewSessionStore(redisClient, config.Session.TTL)
	client := backend.NewClient(auth.NewService(documents, sessions), documents, blobs)

	return NewCoreServiceWithDependencies(config, Dependencies{
		Client:    client,
		Redis:     redisClient,
		Notifier:  notifier,
		Fetcher:   blobstore.NewHTTPFetcher(fetchTimeout),
		Clipboard: clipboard.NewSystem(),
	}), nil
}

func NewCoreServiceWithDependencies(config *ServiceConfig, deps Dependencies) *CoreService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	service := &CoreService{
		config:   config,
		deps:     deps,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*session),
	}

	if config.UI.DashboardIdleTimeout > 0 {
		service.wg.Add(1)
		go service.janitor(config.UI.DashboardIdleTimeout)
	}
	return service
}

func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

func (service *CoreService) Client() *backend.Client {
	return service.deps.Client
}

func (service *CoreService) Redis() *redis.Client {
	return service.deps.Redis
}

func (service *CoreService) Fetcher() ImageFetcher {
	return service.deps.Fetcher
}

// Gate returns the session gate of token, subscribing to its authentication
// state on first use.
func (service *CoreService) Gate(token string) *SessionGate {
	service.mu.Lock()
	if s, ok := service.sessions[token]; ok {
		s.lastSeen = service.deps.Now()
		service.mu.Unlock()
		return s.gate
	}

	gate := NewSessionGate(service.deps.Client.Auth)
	s := &session{gate: gate, lastSeen: service.deps.Now()}
	service.sessions[token] = s
	service.mu.Unlock()

	gate.OnChange(func(status GateStatus, _ *database.User) {
		if status == GateSignedOut {
			service.endSession(token, s)
		}
	})
	gate.Start(service.ctx, token)
	return gate
}

// Dashboard returns the dashboard of a signed in session, opening its live
// subscription on first use. It waits for the session gate to leave loading.
func (service *CoreService) Dashboard(ctx context.Context, token string) (*Dashboard, error) {
	if token == "" {
		return nil, ErrNotSignedIn
	}
	gate := service.Gate(token)
	status := gate.Wait(ctx)
	if err := ctx.Err(); err != nil && status == GateLoading {
		return nil, err
	}
	_, user := gate.Status()
	if status != GateSignedIn || user == nil {
		return nil, ErrNotSignedIn
	}

	service.mu.Lock()
	defer service.mu.Unlock()
	s, ok := service.sessions[token]
	if !ok || s.gate != gate {
		return nil, ErrNotSignedIn
	}
	s.lastSeen = service.deps.Now()
	if s.dashboard != nil {
		select {
		case <-s.dashboard.Done():
			// the live subscription ended on its own, open a new one
			slog.Warn("CoreService: reopening dashboard after its subscription ended", "owner_id", user.ID)
			s.dashboard.Close()
			s.dashboard = nil
		default:
			return s.dashboard, nil
		}
	}

	dashboard := NewDashboard(DashboardDeps{
		Entries:               service.deps.Client.Documents,
		Blobs:                 service.deps.Client.Blobs,
		Auth:                  service.deps.Client.Auth,
		Fetcher:               service.deps.Fetcher,
		Clipboard:             service.deps.Clipboard,
		CopyIndicatorDuration: service.config.UI.CopyIndicatorDuration,
		Now:                   service.deps.Now,
	}, user.ID)
	if err := dashboard.Open(service.ctx); err != nil {
		return nil, err
	}
	s.dashboard = dashboard
	return dashboard, nil
}

// SignIn opens a session and returns its token.
func (service *CoreService) SignIn(ctx context.Context, email, password string) (string, error) {
	token, _, err := service.deps.Client.Auth.SignIn(ctx, email, password)
	return token, err
}

// SignUp registers a user and signs them in.
func (service *CoreService) SignUp(ctx context.Context, email, password string) (string, error) {
	if _, err := service.deps.Client.Auth.SignUp(ctx, email, password); err != nil {
		return "", err
	}
	return service.SignIn(ctx, email, password)
}

// SignOut ends the session of token. Failures are logged only.
func (service *CoreService) SignOut(ctx context.Context, token string) {
	service.mu.Lock()
	s := service.sessions[token]
	var dashboard *Dashboard
	if s != nil {
		dashboard = s.dashboard
	}
	service.mu.Unlock()

	if dashboard != nil {
		dashboard.SignOut(ctx, token)
	} else if err := service.deps.Client.Auth.SignOut(ctx, token); err != nil {
		slog.Error("CoreService: failed to sign out", "error", err)
	}
	if s != nil {
		service.endSession(token, s)
	}
}

// ReadBlob returns the bytes of a blob kept on the local filesystem.
func (service *CoreService) ReadBlob(blobPath string) ([]byte, error) {
	local, ok := service.deps.Client.Blobs.(*blobstore.LocalStore)
	if !ok {
		return nil, blobstore.ErrBlobNotFound
	}
	return local.Read(blobPath)
}

func (service *CoreService) endSession(token string, s *session) {
	service.mu.Lock()
	if current, ok := service.sessions[token]; ok && current == s {
		delete(service.sessions, token)
	}
	dashboard := s.dashboard
	s.dashboard = nil
	service.mu.Unlock()

	s.gate.Stop()
	if dashboard != nil {
		dashboard.Close()
	}
}

func (service *CoreService) janitor(idleTimeout time.Duration) {
	defer service.wg.Done()

	interval := idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-service.ctx.Done():
			return
		case <-ticker.C:
			service.closeIdleSessions(idleTimeout)
		}
	}
}

func (service *CoreService) closeIdleSessions(idleTimeout time.Duration) int {
	cutoff := service.deps.Now().Add(-idleTimeout)

	service.mu.Lock()
	idle := make(map[string]*session)
	for token, s := range service.sessions {
		if s.lastSeen.Before(cutoff) {
			idle[token] = s
		}
	}
	service.mu.Unlock()

	for token, s := range idle {
		service.endSession(token, s)
	}
	if len(idle) > 0 {
		slog.Debug("CoreService: closed idle sessions", "count", len(idle))
	}
	return len(idle)
}

func (service *CoreService) Close() error {
	service.cancel()
	service.wg.Wait()

	service.mu.Lock()
	sessions := service.sessions
	service.sessions = make(map[string]*session)
	service.mu.Unlock()
	for _, s := range sessions {
		s.gate.Stop()
		if s.dashboard != nil {
			s.dashboard.Close()
		}
	}

	var errs []error
	if service.deps.Client != nil {
		errs = append(errs, service.deps.Client.Close())
	}
	if service.deps.Notifier != nil {
		errs = append(errs, service.deps.Notifier.Close())
	}
	if service.deps.Redis != nil {
		errs = append(errs, service.deps.Redis.Close())
	}
	return errors.Join(errs...)
}
