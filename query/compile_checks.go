package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-inbox/core"
)

var (
	_ gocmd.Querier[GetConversationMessage, core.Conversation] = (*GetConversationQuery)(nil)
	_ gocmd.Querier[ListMessagesMessage, []core.Message]       = (*ListMessagesQuery)(nil)
	_ gocmd.Querier[GetInboxMessage, core.Inbox]               = (*GetInboxQuery)(nil)

	_ ConversationReader = (*core.Service)(nil)
	_ InboxReader        = (*core.Service)(nil)
)
