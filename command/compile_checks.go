package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-inbox/core"
)

var (
	_ gocmd.Commander[ProcessBatchMessage]             = (*ProcessBatchCommand)(nil)
	_ gocmd.Commander[ChangeConversationStatusMessage] = (*ChangeConversationStatusCommand)(nil)
	_ gocmd.Commander[ResolveConversationMessage]      = (*ResolveConversationCommand)(nil)

	_ InboxService = (*core.Service)(nil)
)
