// Package webhooks runs inbound provider deliveries through verification,
// a delivery ledger and a handler.
//
// Delivery processing is driven by a claim lifecycle:
// pending/retry_ready -> processing -> processed|dead.
// A failed handler leaves the delivery retry_ready so the provider retry is
// handled again; a processed delivery is acknowledged without re-running.
package webhooks
