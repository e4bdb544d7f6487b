package baileys

import (
	"github.com/goliatone/go-inbox/core"
	"github.com/goliatone/go-inbox/webhooks"
)

var (
	_ webhooks.Verifier            = TokenVerifier{}
	_ webhooks.Handler             = (*Ingestor)(nil)
	_ webhooks.DeliveryIDExtractor = DeliveryID
	_ core.ProfileFetcher          = (*ProfileClient)(nil)
)
