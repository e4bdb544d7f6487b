package baileys

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-inbox/core"
)

const MetadataInboxID = "inbox_id"

// TokenVerifier checks the envelope webhookVerifyToken against the inbox
// provider config. A mismatch rejects the whole batch.
type TokenVerifier struct {
	Inboxes core.InboxStore
}

func (v TokenVerifier) Verify(ctx context.Context, req core.InboundRequest) error {
	if v.Inboxes == nil {
		return fmt.Errorf("providers/baileys: inbox store is required")
	}
	inboxID := InboxIDFromRequest(req)
	if inboxID == "" {
		return fmt.Errorf("providers/baileys: inbox id is required")
	}
	inbox, err := v.Inboxes.GetInbox(ctx, inboxID)
	if err != nil {
		return fmt.Errorf("providers/baileys: load inbox %q: %w", inboxID, err)
	}
	if !strings.EqualFold(strings.TrimSpace(inbox.Provider), ProviderID) {
		return fmt.Errorf("providers/baileys: inbox %q is not a baileys inbox", inboxID)
	}
	expected := strings.TrimSpace(inbox.WebhookVerifyToken)
	if expected == "" {
		return fmt.Errorf("providers/baileys: inbox %q has no webhook verify token", inboxID)
	}

	var envelope struct {
		WebhookVerifyToken string `json:"webhookVerifyToken"`
	}
	if err := json.Unmarshal(req.Body, &envelope); err != nil {
		return fmt.Errorf("providers/baileys: decode webhook body: %w", err)
	}
	provided := strings.TrimSpace(envelope.WebhookVerifyToken)
	if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return fmt.Errorf("providers/baileys: webhook verify token mismatch")
	}
	return nil
}

// InboxIDFromRequest reads the inbox id the transport placed in metadata.
func InboxIDFromRequest(req core.InboundRequest) string {
	if req.Metadata == nil {
		return ""
	}
	value, _ := req.Metadata[MetadataInboxID].(string)
	return strings.TrimSpace(value)
}
