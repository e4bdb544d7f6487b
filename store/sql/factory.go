package sqlstore

import (
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-inbox/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds every SQL store over one bun database and exposes
// them as a core.StoreProvider.
type RepositoryFactory struct {
	db *bun.DB

	inboxStore        *InboxStore
	cachedInboxStore  *CachedInboxStore
	identityStore     *IdentityStore
	conversationStore *ConversationStore
	messageStore      *MessageStore
	deliveryStore     *WebhookDeliveryStore
}

type FactoryOption func(*RepositoryFactory) error

// WithInboxCache fronts inbox reads with cacheService.
func WithInboxCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) error {
		cached, err := NewCachedInboxStore(f.inboxStore, cacheService)
		if err != nil {
			return err
		}
		f.cachedInboxStore = cached
		return nil
	}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	return NewRepositoryFactory(client, opts...)
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	return NewRepositoryFactory(db, opts...)
}

// NewRepositoryFactory accepts a *bun.DB or anything exposing DB() *bun.DB,
// such as a persistence client.
func NewRepositoryFactory(persistenceClient any, opts ...FactoryOption) (*RepositoryFactory, error) {
	db, err := resolveBunDB(persistenceClient)
	if err != nil {
		return nil, err
	}
	factory := &RepositoryFactory{db: db}
	if err := factory.initStores(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(factory); err != nil {
			return nil, err
		}
	}
	return factory, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) InboxStore() core.InboxStore {
	if f == nil {
		return nil
	}
	if f.cachedInboxStore != nil {
		return f.cachedInboxStore
	}
	return f.inboxStore
}

// Inboxes returns the writable inbox store, cached when configured.
func (f *RepositoryFactory) Inboxes() InboxWriter {
	if f == nil {
		return nil
	}
	if f.cachedInboxStore != nil {
		return f.cachedInboxStore
	}
	return f.inboxStore
}

func (f *RepositoryFactory) IdentityStore() core.IdentityStore {
	if f == nil {
		return nil
	}
	return f.identityStore
}

func (f *RepositoryFactory) ConversationStore() core.ConversationStore {
	if f == nil {
		return nil
	}
	return f.conversationStore
}

func (f *RepositoryFactory) MessageStore() core.MessageStore {
	if f == nil {
		return nil
	}
	return f.messageStore
}

func (f *RepositoryFactory) WebhookDeliveryStore() *WebhookDeliveryStore {
	if f == nil {
		return nil
	}
	return f.deliveryStore
}

func (f *RepositoryFactory) initStores() error {
	var err error
	if f.inboxStore, err = NewInboxStore(f.db); err != nil {
		return err
	}
	if f.identityStore, err = NewIdentityStore(f.db); err != nil {
		return err
	}
	if f.conversationStore, err = NewConversationStore(f.db); err != nil {
		return err
	}
	if f.messageStore, err = NewMessageStore(f.db); err != nil {
		return err
	}
	if f.deliveryStore, err = NewWebhookDeliveryStore(f.db); err != nil {
		return err
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
