package sqlstore

import (
	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/webhooks"
)

var (
	_ core.StoreProvider     = (*RepositoryFactory)(nil)
	_ core.InboxStore        = (*InboxStore)(nil)
	_ core.InboxStore        = (*CachedInboxStore)(nil)
	_ core.IdentityStore     = (*IdentityStore)(nil)
	_ core.ConversationStore = (*ConversationStore)(nil)
	_ core.MessageStore      = (*MessageStore)(nil)
	_ InboxWriter            = (*InboxStore)(nil)

	_ webhooks.DeliveryLedger = (*WebhookDeliveryStore)(nil)
)
