package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/room4-2/livebridge/config"
)

// ErrMaxSessions is returned when the concurrent session cap is reached
var ErrMaxSessions = errors.New("maximum sessions reached")

// Manager manages all client sessions
type Manager struct {
	sessions   map[string]*Session
	mu         sync.RWMutex
	registry   *registry // nil when Redis is not configured or unreachable
	config     *config.Config
	dial       Dialer
	loadConfig ConfigLoader

	// Parent of every session's context; cancelled on Shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a session manager. When cfg.RedisURL is set and the
// server answers, sessions are mirrored into Redis.
func NewManager(cfg *config.Config, dial Dialer) *Manager {
	var redisClient *redis.Client

	if cfg.RedisURL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		})

		// Test Redis connection
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Redis unavailable, continue without it
			log.Printf("⚠️ Redis unavailable, session registry disabled: %v", err)
			_ = redisClient.Close()
			redisClient = nil
		}
	}

	return newManager(cfg, dial, FileConfigLoader(cfg), redisClient)
}

func newManager(cfg *config.Config, dial Dialer, loadConfig ConfigLoader, redisClient *redis.Client) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sessions:   make(map[string]*Session),
		config:     cfg,
		dial:       dial,
		loadConfig: loadConfig,
		ctx:        ctx,
		cancel:     cancel,
	}
	if redisClient != nil {
		m.registry = newRegistry(redisClient, cfg.RegistryTTL)
	}
	return m
}

// CreateSession registers a new session for a downstream connection and
// starts it. The session removes itself from the manager when it ends.
func (sm *Manager) CreateSession(downstream Downstream, remoteAddr string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.ctx.Err() != nil {
		return nil, errors.New("session manager is shut down")
	}
	if sm.config.MaxSessions > 0 && len(sm.sessions) >= sm.config.MaxSessions {
		return nil, ErrMaxSessions
	}

	sessionID := uuid.New().String()
	session := New(sessionID, downstream, sm.dial, sm.loadConfig)

	if sm.registry != nil {
		reg := sm.registry
		session.OnStateChange(func(st State) {
			reg.setState(sessionID, st)
		})
		reg.register(session, remoteAddr)
	}
	sm.sessions[sessionID] = session

	go func() {
		session.Run(sm.ctx)
		sm.removeSession(sessionID)
	}()

	return session, nil
}

// GetSession retrieves a session by ID
func (sm *Manager) GetSession(sessionID string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[sessionID]
	return session, exists
}

func (sm *Manager) removeSession(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, exists := sm.sessions[sessionID]; !exists {
		return
	}
	delete(sm.sessions, sessionID)

	if sm.registry != nil {
		sm.registry.remove(sessionID)
	}
}

// GetActiveSessionCount returns current session count
func (sm *Manager) GetActiveSessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// StartHeartbeat keeps registry entries of live sessions from expiring.
// Entries of a crashed process expire after the registry TTL.
func (sm *Manager) StartHeartbeat(ctx context.Context) {
	if sm.registry == nil {
		return
	}

	interval := sm.config.RegistryTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sm.refreshRegistry()
		}
	}
}

func (sm *Manager) refreshRegistry() {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for id := range sm.sessions {
		sm.registry.refresh(id)
	}
}

// Shutdown closes all sessions and waits for them to finish or ctx to expire
func (sm *Manager) Shutdown(ctx context.Context) {
	sm.mu.RLock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.RUnlock()

	sm.cancel()

wait:
	for _, s := range sessions {
		select {
		case <-s.Done():
		case <-ctx.Done():
			log.Printf("⚠️ Shutdown deadline reached with sessions still closing")
			break wait
		}
	}

	if sm.registry != nil {
		sm.registry.close()
	}
}
