package webhooks

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDeliveryLedger is an in-process DeliveryLedger for single-node
// deployments and tests.
type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	records map[string]DeliveryRecord
	now     func() time.Time
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{records: map[string]DeliveryRecord{}}
}

// WithClock replaces the ledger clock.
func (l *MemoryDeliveryLedger) WithClock(now func() time.Time) *MemoryDeliveryLedger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}

func (l *MemoryDeliveryLedger) Claim(
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

	now := l.currentTime()
	key := deliveryKey(providerID, deliveryID)
	record, ok := l.records[key]
	if !ok {
		record = DeliveryRecord{
			ID:         uuid.NewString(),
			ProviderID: providerID,
			DeliveryID: deliveryID,
			Status:     DeliveryStatusPending,
			CreatedAt:  now,
		}
	}

	switch record.Status {
	case DeliveryStatusProcessed, DeliveryStatusDead:
		return cloneDeliveryRecord(record), false, nil
	case DeliveryStatusProcessing, DeliveryStatusRetryReady:
		if record.NextAttemptAt != nil && record.NextAttemptAt.After(now) {
			return cloneDeliveryRecord(record), false, nil
		}
	}

	record.Attempts++
	record.Status = DeliveryStatusProcessing
	record.ClaimID = key + ":" + strconv.Itoa(record.Attempts)
	leaseUntil := now.Add(lease)
	record.NextAttemptAt = &leaseUntil
	record.UpdatedAt = now
	l.records[key] = record
	return cloneDeliveryRecord(record), true, nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, providerID string, deliveryID string) (DeliveryRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[deliveryKey(providerID, deliveryID)]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery %s/%s not found", providerID, deliveryID)
	}
	return cloneDeliveryRecord(record), nil
}

func (l *MemoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, attempt, err := l.claimed(claimID)
	if err != nil {
		return err
	}
	// A claim that lost its lease to a newer attempt no longer owns the record.
	if record.Status != DeliveryStatusProcessing || record.Attempts != attempt {
		return nil
	}
	record.Status = DeliveryStatusProcessed
	record.NextAttemptAt = nil
	record.LastError = ""
	record.UpdatedAt = l.currentTime()
	l.records[deliveryKey(record.ProviderID, record.DeliveryID)] = record
	return nil
}

func (l *MemoryDeliveryLedger) Fail(
	_ context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, attempt, err := l.claimed(claimID)
	if err != nil {
		return err
	}
	if record.Status != DeliveryStatusProcessing || record.Attempts != attempt {
		return nil
	}
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	if cause != nil {
		record.LastError = cause.Error()
	}
	if record.Attempts >= maxAttempts {
		record.Status = DeliveryStatusDead
		record.NextAttemptAt = nil
	} else {
		record.Status = DeliveryStatusRetryReady
		if nextAttemptAt.IsZero() {
			nextAttemptAt = l.currentTime()
		}
		next := nextAttemptAt.UTC()
		record.NextAttemptAt = &next
	}
	record.UpdatedAt = l.currentTime()
	l.records[deliveryKey(record.ProviderID, record.DeliveryID)] = record
	return nil
}

func (l *MemoryDeliveryLedger) claimed(claimID string) (DeliveryRecord, int, error) {
	key, attempt, err := ParseClaimID(claimID)
	if err != nil {
		return DeliveryRecord{}, 0, err
	}
	record, ok := l.records[key]
	if !ok {
		return DeliveryRecord{}, 0, fmt.Errorf("webhooks: delivery for claim %q not found", claimID)
	}
	return record, attempt, nil
}

func (l *MemoryDeliveryLedger) currentTime() time.Time {
	if l.now != nil {
		return l.now().UTC()
	}
	return time.Now().UTC()
}

func deliveryKey(providerID string, deliveryID string) string {
	return strings.TrimSpace(providerID) + ":" + strings.TrimSpace(deliveryID)
}

// ParseClaimID splits a "<provider>:<delivery>:<attempt>" claim id into the
// delivery key and attempt number.
func ParseClaimID(claimID string) (string, int, error) {
	claimID = strings.TrimSpace(claimID)
	index := strings.LastIndex(claimID, ":")
	if index <= 0 {
		return "", 0, fmt.Errorf("webhooks: invalid claim id %q", claimID)
	}
	attempt, err := strconv.Atoi(claimID[index+1:])
	if err != nil || attempt <= 0 {
		return "", 0, fmt.Errorf("webhooks: invalid claim id %q", claimID)
	}
	return claimID[:index], attempt, nil
}

func cloneDeliveryRecord(record DeliveryRecord) DeliveryRecord {
	cloned := record
	if record.NextAttemptAt != nil {
		next := *record.NextAttemptAt
		cloned.NextAttemptAt = &next
	}
	return cloned
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
