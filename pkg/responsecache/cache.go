// Package responsecache provides an in-memory TTL cache for extraction
// oracle responses. Identical note text within the TTL window reuses the
// previous oracle response instead of repeating the network call. The
// cache is an explicitly constructed, injectable dependency rather than
// module-level state, so tests run with a fresh instance.
package responsecache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds cache configuration.
type Config struct {
	// TTL is how long an entry stays valid.
	TTL time.Duration
	// CleanupInterval is how often the janitor removes expired entries.
	CleanupInterval time.Duration
}

// DefaultConfig returns defaults suited to the short window in which a
// dictated note may be re-submitted unchanged.
func DefaultConfig() Config {
	return Config{
		TTL:             5 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is a process-wide TTL cache keyed by note hash.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	config  Config
	logger  *zap.Logger

	// Control for the janitor goroutine.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a cache. Call StartCleanup to run the janitor; short-lived
// caches in tests can skip it since Get checks expiry itself.
func New(cfg Config, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultConfig().CleanupInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		entries: make(map[string]entry),
		config:  cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Key derives the cache key for a note: SHA-256 of the raw text.
func Key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for key, or false when absent or expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value under key with the configured TTL.
func (c *Cache) Set(key string, value []byte) {
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: time.Now().Add(c.config.TTL)}
	c.mu.Unlock()
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included until the
// janitor runs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartCleanup starts the background janitor.
func (c *Cache) StartCleanup() {
	go c.cleanupLoop()
	c.logger.Info("response cache janitor started",
		zap.Duration("ttl", c.config.TTL),
		zap.Duration("interval", c.config.CleanupInterval))
}

// Stop stops the janitor. Safe to call only after StartCleanup.
func (c *Cache) Stop() {
	c.cancel()
	<-c.done
}

func (c *Cache) cleanupLoop() {
	defer close(c.done)

	ticker := time.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	now := time.Now()
	c.mu.Lock()
	removed := 0
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Debug("response cache cleanup", zap.Int("removed", removed))
	}
}
