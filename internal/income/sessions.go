package income

import (
	"time"

	"entrate/internal/cache"
)

// Sessions keeps one Controller per browser session in an LRU cache with a
// sliding TTL. Evicted controllers are closed.
type Sessions struct {
	cache   *cache.LRUCache[*Controller]
	factory func() *Controller
}

// NewSessions creates a cache of at most size controllers, each expiring
// ttl after its last use. factory builds the controller of a new session.
func NewSessions(size int, ttl time.Duration, factory func() *Controller) *Sessions {
	c := cache.NewLRUCache[*Controller](size, ttl)
	c.OnEvict(func(_ string, ctrl *Controller) { ctrl.Close() })
	return &Sessions{cache: c, factory: factory}
}

// Get returns the controller for key, creating it on first use.
func (s *Sessions) Get(key string) *Controller {
	ctrl, _ := s.cache.GetOrSet(key, s.factory)
	return ctrl
}

// Len returns the number of cached sessions.
func (s *Sessions) Len() int { return s.cache.Size() }

// Cleaner exposes the underlying cache for periodic expiry.
func (s *Sessions) Cleaner() cache.Cleaner { return s.cache }
