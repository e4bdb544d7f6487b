package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-inbox/core"
)

const inboxCacheKeyPrefix = "go-inbox::inbox::v1"

// InboxWriter is the write side of an inbox store, wrapped so cached reads
// are invalidated on change.
type InboxWriter interface {
	core.InboxStore
	PutInbox(ctx context.Context, inbox core.Inbox) (core.Inbox, error)
}

// CachedInboxStore serves inbox settings from a read-through cache. Every
// webhook delivery loads its inbox, and inbox rows change rarely.
type CachedInboxStore struct {
	base  InboxWriter
	cache repositorycache.CacheService
}

func NewCachedInboxStore(base InboxWriter, cacheService repositorycache.CacheService) (*CachedInboxStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base inbox store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: inbox cache service is required")
	}
	return &CachedInboxStore{base: base, cache: cacheService}, nil
}

// InboxCacheKey returns go-inbox::inbox::v1::<inbox_id> with the id path
// escaped.
func InboxCacheKey(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: inbox id is required")
	}
	return inboxCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedInboxStore) GetInbox(ctx context.Context, id string) (core.Inbox, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Inbox{}, errNotConfigured
	}
	key, err := InboxCacheKey(id)
	if err != nil {
		return core.Inbox{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (core.Inbox, error) {
		return s.base.GetInbox(ctx, strings.TrimSpace(id))
	})
}

func (s *CachedInboxStore) PutInbox(ctx context.Context, inbox core.Inbox) (core.Inbox, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Inbox{}, errNotConfigured
	}
	stored, err := s.base.PutInbox(ctx, inbox)
	if err != nil {
		return core.Inbox{}, err
	}
	key, err := InboxCacheKey(stored.ID)
	if err != nil {
		return core.Inbox{}, err
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		return core.Inbox{}, err
	}
	return stored, nil
}

// NewInboxCacheService builds the cache service using cfg's inbox TTL.
func NewInboxCacheService(cfg core.Config) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl := cfg.InboxCacheTTL(); ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

var _ InboxWriter = (*CachedInboxStore)(nil)
