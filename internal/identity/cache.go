package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/avasdk/internal/config"
	"github.com/vyrodovalexey/avasdk/internal/observability"
)

// Cache defaults.
const (
	DefaultRefreshMargin     = config.DefaultRefreshMargin
	DefaultLoadTimeout       = config.DefaultLoadTimeout
	DefaultExpiration        = config.DefaultIdentityLifetime
	refreshKey               = "identity"
	cacheResultHit           = "hit"
	cacheResultMiss          = "miss"
	cacheResultStale         = "stale"
	cacheResultRefreshFailed = "error"
)

// Cache is a lazy caching Resolver. It serves the cached identity until
// it comes within the refresh margin of its expiry, then refreshes it.
// Concurrent callers share a single in-flight refresh, and a caller that
// gives up waiting does not cancel it.
type Cache struct {
	resolver          Resolver
	name              string
	clock             clock.Clock
	refreshMargin     time.Duration
	loadTimeout       time.Duration
	defaultExpiration time.Duration
	allowStale        bool
	staleGrace        time.Duration
	logger            observability.Logger
	metrics           *observability.Metrics

	group  singleflight.Group
	mu     sync.RWMutex
	cached *Identity
	expiry time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheName sets the name used in logs and metrics.
func WithCacheName(name string) CacheOption {
	return func(c *Cache) {
		c.name = name
	}
}

// WithClock sets the time source.
func WithClock(clk clock.Clock) CacheOption {
	return func(c *Cache) {
		c.clock = clk
	}
}

// WithRefreshMargin sets how long before expiry a refresh is triggered.
func WithRefreshMargin(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.refreshMargin = d
	}
}

// WithLoadTimeout bounds each resolver call.
func WithLoadTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.loadTimeout = d
	}
}

// WithDefaultExpiration sets the lifetime given to identities that have
// no expiry of their own. Zero caches them indefinitely.
func WithDefaultExpiration(d time.Duration) CacheOption {
	return func(c *Cache) {
		c.defaultExpiration = d
	}
}

// WithStaleGrace allows serving the previous identity when a refresh
// fails, for up to grace into the refresh margin. The identity is never
// served once it has expired.
func WithStaleGrace(grace time.Duration) CacheOption {
	return func(c *Cache) {
		c.allowStale = true
		c.staleGrace = grace
	}
}

// WithCacheConfig applies the identity cache section of a client config.
func WithCacheConfig(cfg config.IdentityCache) CacheOption {
	return func(c *Cache) {
		c.refreshMargin = cfg.RefreshMargin
		c.loadTimeout = cfg.LoadTimeout
		c.defaultExpiration = cfg.DefaultExpiration
		c.allowStale = cfg.AllowStale
		c.staleGrace = cfg.StaleGrace
	}
}

// WithCacheLogger sets the logger.
func WithCacheLogger(l observability.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = l
	}
}

// WithCacheMetrics sets the metrics sink.
func WithCacheMetrics(m *observability.Metrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache wraps resolver in a lazy cache.
func NewCache(resolver Resolver, opts ...CacheOption) *Cache {
	c := &Cache{
		resolver:          resolver,
		name:              "default",
		clock:             clock.NewClock(),
		refreshMargin:     DefaultRefreshMargin,
		loadTimeout:       DefaultLoadTimeout,
		defaultExpiration: DefaultExpiration,
		logger:            observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveIdentity returns the cached identity or waits for a refresh.
func (c *Cache) ResolveIdentity(ctx context.Context) (*Identity, error) {
	if id, ok := c.fresh(c.clock.Now()); ok {
		c.metrics.RecordIdentityCache(c.name, cacheResultHit)
		return id, nil
	}
	c.metrics.RecordIdentityCache(c.name, cacheResultMiss)

	// The refresh keeps the first caller's values but not its deadline.
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (interface{}, error) {
		return c.refresh(detached)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Identity), nil
	}
}

// Invalidate drops the cached identity so the next call refreshes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.expiry = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) fresh(now time.Time) (*Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.cached == nil {
		return nil, false
	}
	if c.expiry.IsZero() || now.Add(c.refreshMargin).Before(c.expiry) {
		return c.cached, true
	}
	return nil, false
}

func (c *Cache) refresh(ctx context.Context) (*Identity, error) {
	start := c.clock.Now()

	// A refresh that completed just before this one started already
	// produced a usable identity.
	if id, ok := c.fresh(start); ok {
		return id, nil
	}

	if c.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.loadTimeout)
		defer cancel()
	}

	id, err := c.resolver.ResolveIdentity(ctx)
	c.metrics.RecordIdentityRefresh(c.name, c.clock.Since(start))

	now := c.clock.Now()
	if err == nil && id == nil {
		err = unavailable(c.name, "refresh", "resolver returned no identity", nil)
	}
	if err == nil && id.Expired(now) {
		err = unavailable(id.ProviderName(), "refresh", "", ErrExpired)
	}
	if err != nil {
		return c.fallback(now, err)
	}

	expiry, ok := id.Expiration()
	if !ok && c.defaultExpiration > 0 {
		expiry = now.Add(c.defaultExpiration)
	}

	c.mu.Lock()
	c.cached = id
	c.expiry = expiry
	c.mu.Unlock()

	c.logger.Debug("identity refreshed",
		observability.String("cache", c.name),
		observability.String("provider", id.ProviderName()),
		observability.Time("expiry", expiry),
	)

	return id, nil
}

func (c *Cache) fallback(now time.Time, err error) (*Identity, error) {
	c.mu.RLock()
	stale, expiry := c.cached, c.expiry
	c.mu.RUnlock()

	if c.servesStale(stale, expiry, now) {
		c.metrics.RecordIdentityCache(c.name, cacheResultStale)
		c.logger.Warn("identity refresh failed, serving previous identity",
			observability.String("cache", c.name),
			observability.String("provider", stale.ProviderName()),
			observability.Error(err),
		)
		return stale, nil
	}

	c.metrics.RecordIdentityCache(c.name, cacheResultRefreshFailed)
	c.logger.Warn("identity refresh failed",
		observability.String("cache", c.name),
		observability.Error(err),
	)

	if !errors.Is(err, ErrIdentityUnavailable) {
		err = unavailable(c.name, "refresh", "", err)
	}
	return nil, err
}

func (c *Cache) servesStale(stale *Identity, expiry, now time.Time) bool {
	if !c.allowStale || stale == nil || stale.Expired(now) {
		return false
	}
	if expiry.IsZero() {
		return true
	}
	windowEnd := expiry.Add(-c.refreshMargin).Add(c.staleGrace)
	return now.Before(expiry) && now.Before(windowEnd)
}

var _ Resolver = (*Cache)(nil)
