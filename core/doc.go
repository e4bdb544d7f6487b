// Package core contains the inbox domain contracts, entities, and the contact
// identity reconciliation pipeline. Provider adapters and storage backends
// depend on this package; core must not depend on provider-specific or
// transport-specific adapters.
//
// An inbound event flows through four components:
// IdentifierResolver -> ContactInboxRegistrar -> ConversationRouter -> MessagePersister.
// Uniqueness constraints in the backing store are the only arbiter of
// concurrent identity claims; the components never lock in process.
package core
