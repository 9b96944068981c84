package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-payments/webhooks"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultClaimLease = 30 * time.Second

// WebhookDeliveryStore is a DeliveryLedger backed by the
// payment_webhook_deliveries table. Claims are compare-and-swap on the
// attempt counter so only one worker owns a delivery at a time.
type WebhookDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
	now  func() time.Time
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo, err := newRepository(db, webhookDeliveryHandlers(), "webhook delivery")
	if err != nil {
		return nil, err
	}
	return &WebhookDeliveryStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// WithClock replaces the store clock.
func (s *WebhookDeliveryStore) WithClock(now func() time.Time) *WebhookDeliveryStore {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *WebhookDeliveryStore) Claim(
	ctx context.Context,
	providerID string,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}
	now := s.now().UTC()

	record, err := s.findOrCreate(ctx, providerID, deliveryID, payload, now)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	if !claimable(record, now) {
		return webhookDeliveryToDomain(record), false, nil
	}

	previousAttempts := record.Attempts
	leaseUntil := now.Add(lease)
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessing).
		Set("attempts = ?", previousAttempts+1).
		Set("next_attempt_at = ?", leaseUntil).
		Set("updated_at = ?", now).
		Where("id = ?", record.ID).
		Where("attempts = ?", previousAttempts).
		Exec(ctx)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return webhooks.DeliveryRecord{}, false, err
	} else if affected != 1 {
		// Another worker claimed the same attempt first.
		current, getErr := s.Get(ctx, providerID, deliveryID)
		return current, false, getErr
	}

	record.Status = webhooks.DeliveryStatusProcessing
	record.Attempts = previousAttempts + 1
	record.NextAttemptAt = &leaseUntil
	record.UpdatedAt = now
	return webhookDeliveryToDomain(record), true, nil
}

func (s *WebhookDeliveryStore) Get(
	ctx context.Context,
	providerID string,
	deliveryID string,
) (webhooks.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	record, err := s.find(ctx, s.db, providerID, deliveryID)
	if err != nil {
		return webhooks.DeliveryRecord{}, err
	}
	if record == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf(
			"sqlstore: webhook delivery not found for provider %q delivery %q",
			providerID,
			deliveryID,
		)
	}
	return webhookDeliveryToDomain(record), nil
}

func (s *WebhookDeliveryStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	providerID, deliveryID, attempt, err := splitClaimID(claimID)
	if err != nil {
		return err
	}
	_, err = s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessed).
		Set("next_attempt_at = NULL").
		Set("last_error = ?", "").
		Set("updated_at = ?", s.now().UTC()).
		Where("provider_id = ?", providerID).
		Where("delivery_id = ?", deliveryID).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Where("attempts = ?", attempt).
		Exec(ctx)
	return err
}

func (s *WebhookDeliveryStore) Fail(
	ctx context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	providerID, deliveryID, attempt, err := splitClaimID(claimID)
	if err != nil {
		return err
	}
	if maxAttempts <= 0 {
		maxAttempts = 8
	}
	now := s.now().UTC()
	query := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("updated_at = ?", now)
	if cause != nil {
		query = query.Set("last_error = ?", cause.Error())
	}
	if attempt >= maxAttempts {
		query = query.
			Set("status = ?", webhooks.DeliveryStatusDead).
			Set("next_attempt_at = NULL")
	} else {
		if nextAttemptAt.IsZero() {
			nextAttemptAt = now
		}
		query = query.
			Set("status = ?", webhooks.DeliveryStatusRetryReady).
			Set("next_attempt_at = ?", nextAttemptAt.UTC())
	}
	_, err = query.
		Where("provider_id = ?", providerID).
		Where("delivery_id = ?", deliveryID).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Where("attempts = ?", attempt).
		Exec(ctx)
	return err
}

func (s *WebhookDeliveryStore) findOrCreate(
	ctx context.Context,
	providerID string,
	deliveryID string,
	payload []byte,
	now time.Time,
) (*webhookDeliveryRecord, error) {
	record, err := s.find(ctx, s.db, providerID, deliveryID)
	if err != nil || record != nil {
		return record, err
	}
	record = &webhookDeliveryRecord{
		ID:         uuid.NewString(),
		ProviderID: providerID,
		DeliveryID: deliveryID,
		Status:     webhooks.DeliveryStatusPending,
		Payload:    append([]byte(nil), payload...),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, err
		}
		existing, findErr := s.find(ctx, s.db, providerID, deliveryID)
		if findErr != nil {
			return nil, findErr
		}
		if existing == nil {
			return nil, err
		}
		return existing, nil
	}
	return created, nil
}

func (s *WebhookDeliveryStore) find(
	ctx context.Context,
	db bun.IDB,
	providerID string,
	deliveryID string,
) (*webhookDeliveryRecord, error) {
	record := &webhookDeliveryRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(providerID)).
		Where("?TableAlias.delivery_id = ?", strings.TrimSpace(deliveryID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func claimable(record *webhookDeliveryRecord, now time.Time) bool {
	switch record.Status {
	case webhooks.DeliveryStatusProcessed, webhooks.DeliveryStatusDead:
		return false
	case webhooks.DeliveryStatusProcessing, webhooks.DeliveryStatusRetryReady:
		if record.NextAttemptAt != nil && record.NextAttemptAt.After(now) {
			return false
		}
	}
	return true
}

// splitClaimID reverses the "<provider>:<delivery>:<attempt>" claim format.
// Provider ids never contain a colon, delivery ids may.
func splitClaimID(claimID string) (string, string, int, error) {
	key, attempt, err := webhooks.ParseClaimID(claimID)
	if err != nil {
		return "", "", 0, err
	}
	providerID, deliveryID, ok := strings.Cut(key, ":")
	if !ok || providerID == "" || deliveryID == "" {
		return "", "", 0, fmt.Errorf("sqlstore: invalid claim id %q", claimID)
	}
	return providerID, deliveryID, attempt, nil
}

func webhookDeliveryToDomain(record *webhookDeliveryRecord) webhooks.DeliveryRecord {
	if record == nil {
		return webhooks.DeliveryRecord{}
	}
	result := webhooks.DeliveryRecord{
		ID:         record.ID,
		ProviderID: record.ProviderID,
		DeliveryID: record.DeliveryID,
		Status:     record.Status,
		Attempts:   record.Attempts,
		LastError:  record.LastError,
		CreatedAt:  record.CreatedAt.UTC(),
		UpdatedAt:  record.UpdatedAt.UTC(),
	}
	if record.Attempts > 0 {
		result.ClaimID = record.ProviderID + ":" + record.DeliveryID + ":" + strconv.Itoa(record.Attempts)
	}
	if record.NextAttemptAt != nil {
		value := record.NextAttemptAt.UTC()
		result.NextAttemptAt = &value
	}
	return result
}

var _ webhooks.DeliveryLedger = (*WebhookDeliveryStore)(nil)
