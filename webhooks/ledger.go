package webhooks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-inbox/core"
)

// MemoryLedger is a process-local DeliveryLedger for tests and single-node
// development setups.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]DeliveryRecord
	Now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		records: map[string]DeliveryRecord{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryLedger) Claim(
	_ context.Context,
	providerID string,
	deliveryID string,
	_ []byte,
	lease time.Duration,
) (DeliveryRecord, bool, error) {
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(providerID, deliveryID)
	now := l.now()
	record, ok := l.records[key]
	if !ok {
		record = DeliveryRecord{
			ID:         key,
			ProviderID: providerID,
			DeliveryID: deliveryID,
			Status:     DeliveryStatusPending,
			CreatedAt:  now,
		}
	}
	if !Claimable(record, now) {
		return record, false, nil
	}

	record.Status = DeliveryStatusProcessing
	record.Attempts++
	record.ClaimID = key + ":" + strconv.Itoa(record.Attempts)
	leaseEnd := now.Add(lease)
	record.NextAttemptAt = &leaseEnd
	record.UpdatedAt = now
	l.records[key] = record
	return record, true, nil
}

func (l *MemoryLedger) Get(_ context.Context, providerID string, deliveryID string) (DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok := l.records[ledgerKey(providerID, deliveryID)]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery %q not found: %w", deliveryID, core.ErrNotFound)
	}
	return record, nil
}

func (l *MemoryLedger) Complete(_ context.Context, claimID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok, err := l.claimedLocked(claimID)
	if err != nil || !ok {
		return err
	}
	record.Status = DeliveryStatusProcessed
	record.NextAttemptAt = nil
	record.LastError = ""
	record.UpdatedAt = l.now()
	l.records[ledgerKey(record.ProviderID, record.DeliveryID)] = record
	return nil
}

func (l *MemoryLedger) Fail(_ context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, ok, err := l.claimedLocked(claimID)
	if err != nil || !ok {
		return err
	}
	if cause != nil {
		record.LastError = cause.Error()
	}
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	if record.Attempts >= maxAttempts {
		record.Status = DeliveryStatusDead
		record.NextAttemptAt = nil
	} else {
		if nextAttemptAt.IsZero() {
			nextAttemptAt = l.now()
		}
		record.Status = DeliveryStatusRetryReady
		next := nextAttemptAt.UTC()
		record.NextAttemptAt = &next
	}
	record.UpdatedAt = l.now()
	l.records[ledgerKey(record.ProviderID, record.DeliveryID)] = record
	return nil
}

// claimedLocked returns the record only while claimID is still the live
// claim; a stale claim from an expired lease is ignored.
func (l *MemoryLedger) claimedLocked(claimID string) (DeliveryRecord, bool, error) {
	key, attempt, err := ParseClaimID(claimID)
	if err != nil {
		return DeliveryRecord{}, false, err
	}
	record, ok := l.records[key]
	if !ok {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: delivery for claim %q not found: %w", claimID, core.ErrNotFound)
	}
	if record.Status != DeliveryStatusProcessing || record.Attempts != attempt {
		return DeliveryRecord{}, false, nil
	}
	return record, true, nil
}

func (l *MemoryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// Claimable reports whether a delivery in record's state may be handed to a
// new handler at now. Processing rows become claimable when their lease ends.
func Claimable(record DeliveryRecord, now time.Time) bool {
	switch record.Status {
	case DeliveryStatusProcessed, DeliveryStatusDead:
		return false
	case DeliveryStatusRetryReady, DeliveryStatusProcessing:
		return record.NextAttemptAt == nil || !now.Before(record.NextAttemptAt.UTC())
	default:
		return true
	}
}

func ledgerKey(providerID string, deliveryID string) string {
	return strings.TrimSpace(providerID) + ":" + strings.TrimSpace(deliveryID)
}

// ParseClaimID splits a claim id of the form <provider>:<delivery>:<attempt>.
func ParseClaimID(claimID string) (string, int, error) {
	parts := strings.Split(strings.TrimSpace(claimID), ":")
	if len(parts) < 3 {
		return "", 0, fmt.Errorf("webhooks: invalid claim id %q", claimID)
	}
	attempt, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || attempt <= 0 {
		return "", 0, fmt.Errorf("webhooks: invalid claim id %q", claimID)
	}
	return strings.Join(parts[:len(parts)-1], ":"), attempt, nil
}

var _ DeliveryLedger = (*MemoryLedger)(nil)
