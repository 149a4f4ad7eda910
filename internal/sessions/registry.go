// Package sessions keeps the live tables served over HTTP. Each session
// owns one Table and a broker that fans its events out to stream clients.
// Idle sessions expire and are closed.
package sessions

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/JonMunkholm/gridedit/internal/pubsub"
	"github.com/JonMunkholm/gridedit/internal/table"
)

const (
	DefaultTTL             = 30 * time.Minute
	DefaultCleanupInterval = 5 * time.Minute
	DefaultMaxSessions     = 1000
)

// ErrLimitReached is returned by Create when MaxSessions are live.
var ErrLimitReached = errors.New("session limit reached")

// Config bounds the registry.
type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	MaxSessions     int
	EventBuffer     int
}

// Session is one live table.
type Session struct {
	ID      uuid.UUID
	Table   *table.Table
	Events  *pubsub.Broker[table.Event]
	Created time.Time

	unsubscribe func()
	closeOnce   sync.Once
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.unsubscribe()
		s.Table.Close()
		s.Events.Close()
	})
}

// Registry maps session IDs to sessions.
type Registry struct {
	cache  *gocache.Cache
	cfg    Config
	logger *slog.Logger
	mu     sync.Mutex
}

// NewRegistry creates a registry. Zero Config fields take the package
// defaults.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		cache:  gocache.New(cfg.TTL, cfg.CleanupInterval),
		cfg:    cfg,
		logger: logger,
	}
	r.cache.OnEvicted(func(key string, v any) {
		s, ok := v.(*Session)
		if !ok {
			return
		}
		s.close()
		r.logger.Info("session closed", "session", key, "age", time.Since(s.Created).Round(time.Second))
	})
	return r
}

// Create starts a session around a new table built from opts.
func (r *Registry) Create(opts table.Options) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cache.ItemCount() >= r.cfg.MaxSessions {
		return nil, ErrLimitReached
	}

	s := &Session{
		ID:      uuid.New(),
		Table:   table.New(opts),
		Events:  pubsub.NewBrokerWithBuffer[table.Event](r.cfg.EventBuffer),
		Created: time.Now(),
	}
	s.unsubscribe = s.Table.Subscribe(func(ev table.Event) {
		s.Events.PublishEvent(pubsub.Event[table.Event]{
			Type:      pubsub.EventType(ev.Type),
			Payload:   ev,
			Timestamp: ev.Timestamp,
		})
	})

	r.cache.SetDefault(s.ID.String(), s)
	r.logger.Info("session created", "session", s.ID)
	return s, nil
}

// Get returns the session and pushes back its expiry.
func (r *Registry) Get(id string) (*Session, bool) {
	v, found := r.cache.Get(id)
	if !found {
		return nil, false
	}
	s, ok := v.(*Session)
	if !ok {
		r.logger.Error("wrong type in session cache", "session", id)
		return nil, false
	}
	r.cache.SetDefault(id, s)
	return s, true
}

// Delete closes and removes a session. It reports whether it existed.
func (r *Registry) Delete(id string) bool {
	if _, found := r.cache.Get(id); !found {
		return false
	}
	r.cache.Delete(id)
	return true
}

// Len returns the number of live sessions, expired ones not yet swept
// included.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close closes every session.
func (r *Registry) Close() {
	r.cache.DeleteExpired()
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
}
