package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// LedgerStore persists clients, orders and transactions with bun. Put
// operations are guarded by the version column so concurrent writers cannot
// overwrite each other.
type LedgerStore struct {
	db        *bun.DB
	orderRepo repository.Repository[*orderRecord]
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	orderRepo, err := newRepository(db, orderHandlers(), "order")
	if err != nil {
		return nil, err
	}
	return &LedgerStore{db: db, orderRepo: orderRepo}, nil
}

func (s *LedgerStore) GetClient(ctx context.Context, id string) (core.ApiClient, error) {
	if err := s.ready(); err != nil {
		return core.ApiClient{}, err
	}
	record := &apiClientRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.ApiClient{}, core.NewNotFoundError("client", id)
		}
		return core.ApiClient{}, err
	}
	return record.toDomain()
}

func (s *LedgerStore) SaveClient(ctx context.Context, client core.ApiClient) (core.ApiClient, error) {
	if err := s.ready(); err != nil {
		return core.ApiClient{}, err
	}
	client.ID = strings.TrimSpace(client.ID)
	if client.ID == "" {
		return core.ApiClient{}, core.NewValidationError("client_id", "client id is required")
	}
	record := newAPIClientRecord(client)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().
			Model((*apiClientRecord)(nil)).
			Where("?TableAlias.id = ?", record.ID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			_, err = tx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		_, err = tx.NewUpdate().Model(record).WherePK().Exec(ctx)
		return err
	})
	if err != nil {
		return core.ApiClient{}, err
	}
	return record.toDomain()
}

func (s *LedgerStore) InsertOrder(ctx context.Context, order core.Order) (core.Order, error) {
	if err := s.ready(); err != nil {
		return core.Order{}, err
	}
	record := newOrderRecord(order)
	record.Version = 1
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return core.Order{}, core.NewConflictError("order", order.Reference)
		}
		return core.Order{}, err
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) GetOrder(ctx context.Context, id string) (core.Order, error) {
	if err := s.ready(); err != nil {
		return core.Order{}, err
	}
	record, err := findOrder(ctx, s.db, "id", id)
	if err != nil {
		return core.Order{}, err
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) GetOrderByReference(ctx context.Context, reference string) (core.Order, error) {
	if err := s.ready(); err != nil {
		return core.Order{}, err
	}
	record, err := findOrder(ctx, s.db, "reference", reference)
	if err != nil {
		return core.Order{}, err
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) PutOrder(ctx context.Context, order core.Order, expectedVersion int64) (core.Order, error) {
	if err := s.ready(); err != nil {
		return core.Order{}, err
	}
	var out core.Order
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := findOrder(ctx, tx, "id", order.ID)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return core.NewConflictError("order", order.ID)
		}
		record := newOrderRecord(order)
		record.Reference = current.Reference
		record.CreatedAt = current.CreatedAt
		record.Version = expectedVersion + 1
		res, err := tx.NewUpdate().
			Model(record).
			WherePK().
			Where("version = ?", expectedVersion).
			Exec(ctx)
		if err != nil {
			return err
		}
		if err := expectOneRow(res, "order", order.ID); err != nil {
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Order{}, err
	}
	return out, nil
}

func (s *LedgerStore) ListOrders(ctx context.Context, filter core.OrderFilter) (core.OrderPage, error) {
	if err := s.ready(); err != nil {
		return core.OrderPage{}, err
	}
	filter = filter.Normalized()
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(filter.Limit, filter.Offset),
	}
	if filter.ClientID != "" {
		selectors = append(selectors, repository.SelectBy("client_id", "=", filter.ClientID))
	}
	if filter.Status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", string(filter.Status)))
	}
	records, total, err := s.orderRepo.List(ctx, selectors...)
	if err != nil {
		return core.OrderPage{}, err
	}
	items := make([]core.Order, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.OrderPage{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// positionInsertAttempts bounds retries when concurrent inserts for one order
// race for the same position.
const positionInsertAttempts = 5

func (s *LedgerStore) InsertTransaction(ctx context.Context, txn core.Transaction) (core.Transaction, error) {
	if err := s.ready(); err != nil {
		return core.Transaction{}, err
	}
	var (
		record *transactionRecord
		err    error
	)
	for attempt := 0; attempt < positionInsertAttempts; attempt++ {
		record, err = s.insertTransaction(ctx, txn)
		if !isPositionCollision(err) {
			break
		}
	}
	if err != nil {
		if isPositionCollision(err) {
			return core.Transaction{}, core.NewConflictError("transaction", txn.Reference)
		}
		return core.Transaction{}, err
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) insertTransaction(ctx context.Context, txn core.Transaction) (*transactionRecord, error) {
	record := newTransactionRecord(txn)
	record.Version = 1
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := findOrder(ctx, tx, "id", txn.OrderID); err != nil {
			return err
		}
		if err := checkProviderReference(ctx, tx, record); err != nil {
			return err
		}
		var last int64
		if err := tx.NewSelect().
			Model((*transactionRecord)(nil)).
			ColumnExpr("COALESCE(MAX(?TableAlias.position), 0)").
			Where("?TableAlias.order_id = ?", record.OrderID).
			Scan(ctx, &last); err != nil {
			return err
		}
		record.Position = last + 1
		if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
			if isPositionCollision(err) {
				return err
			}
			return transactionWriteError(err, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *LedgerStore) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	if err := s.ready(); err != nil {
		return core.Transaction{}, err
	}
	record, err := findTransaction(ctx, s.db, "id", id, "transaction")
	if err != nil {
		return core.Transaction{}, err
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) GetTransactionByReference(ctx context.Context, reference string) (core.Transaction, error) {
	if err := s.ready(); err != nil {
		return core.Transaction{}, err
	}
	record, err := findTransaction(ctx, s.db, "reference", reference, "transaction")
	if err != nil {
		return core.Transaction{}, err
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) FindTransactionByProviderReference(ctx context.Context, providerReference string) (core.Transaction, error) {
	if err := s.ready(); err != nil {
		return core.Transaction{}, err
	}
	if strings.TrimSpace(providerReference) == "" {
		return core.Transaction{}, core.NewNotFoundError("provider reference", providerReference)
	}
	record, err := findTransaction(ctx, s.db, "provider_reference", providerReference, "provider reference")
	if err != nil {
		return core.Transaction{}, err
	}
	return record.toDomain(), nil
}

func (s *LedgerStore) PutTransaction(ctx context.Context, txn core.Transaction, expectedVersion int64) (core.Transaction, error) {
	if err := s.ready(); err != nil {
		return core.Transaction{}, err
	}
	var out core.Transaction
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := findTransaction(ctx, tx, "id", txn.ID, "transaction")
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return core.NewConflictError("transaction", txn.ID)
		}
		record := newTransactionRecord(txn)
		record.Reference = current.Reference
		record.OrderID = current.OrderID
		record.Position = current.Position
		record.CreatedAt = current.CreatedAt
		record.Version = expectedVersion + 1
		if err := checkProviderReference(ctx, tx, record); err != nil {
			return err
		}
		res, err := tx.NewUpdate().
			Model(record).
			WherePK().
			Where("version = ?", expectedVersion).
			Exec(ctx)
		if err != nil {
			return transactionWriteError(err, record)
		}
		if err := expectOneRow(res, "transaction", txn.ID); err != nil {
			return err
		}
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return out, nil
}

func (s *LedgerStore) ListTransactionsByOrder(ctx context.Context, orderID string) ([]core.Transaction, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	records := []*transactionRecord{}
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.order_id = ?", strings.TrimSpace(orderID)).
		OrderExpr("?TableAlias.position ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *LedgerStore) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: ledger store is not configured")
	}
	return nil
}

func findOrder(ctx context.Context, db bun.IDB, column string, value string) (*orderRecord, error) {
	record := &orderRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), strings.TrimSpace(value)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewNotFoundError("order", value)
		}
		return nil, err
	}
	return record, nil
}

func findTransaction(ctx context.Context, db bun.IDB, column string, value string, resource string) (*transactionRecord, error) {
	record := &transactionRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), strings.TrimSpace(value)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NewNotFoundError(resource, value)
		}
		return nil, err
	}
	return record, nil
}

// checkProviderReference rejects binding a provider reference already held by
// another transaction.
func checkProviderReference(ctx context.Context, db bun.IDB, record *transactionRecord) error {
	if record.ProviderReference == nil {
		return nil
	}
	owner := &transactionRecord{}
	err := db.NewSelect().
		Model(owner).
		Column("id").
		Where("?TableAlias.provider_reference = ?", *record.ProviderReference).
		Where("?TableAlias.id <> ?", record.ID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return providerReferenceTaken(*record.ProviderReference, owner.ID)
}

func providerReferenceTaken(reference string, owner string) error {
	return core.NewInvalidStateError(
		fmt.Sprintf("provider reference %q is already bound to another transaction", reference),
		map[string]any{"provider_reference": reference, "transaction_id": owner},
	)
}

func transactionWriteError(err error, record *transactionRecord) error {
	if !isUniqueViolation(err) {
		return err
	}
	if record.ProviderReference != nil && strings.Contains(strings.ToLower(err.Error()), "provider_reference") {
		return providerReferenceTaken(*record.ProviderReference, "")
	}
	return core.NewConflictError("transaction", record.Reference)
}

func expectOneRow(res sql.Result, resource string, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != 1 {
		return core.NewConflictError(resource, id)
	}
	return nil
}

func isPositionCollision(err error) bool {
	return isUniqueViolation(err) && strings.Contains(strings.ToLower(err.Error()), "position")
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}

func newAPIClientRecord(client core.ApiClient) *apiClientRecord {
	now := time.Now().UTC()
	record := &apiClientRecord{
		ID:             strings.TrimSpace(client.ID),
		Name:           client.Name,
		Secret:         client.Secret,
		Active:         client.Active,
		PaymentMethods: client.PaymentMethods.Strings(),
		WebhookURL:     client.WebhookURL,
		WebsiteURL:     client.WebsiteURL,
		ContactEmail:   client.ContactEmail,
		CreatedAt:      client.CreatedAt.UTC(),
		UpdatedAt:      client.UpdatedAt.UTC(),
	}
	if client.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if client.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	return record
}

func (r *apiClientRecord) toDomain() (core.ApiClient, error) {
	methods, err := core.ParsePaymentMethods(r.PaymentMethods)
	if err != nil {
		return core.ApiClient{}, fmt.Errorf("sqlstore: client %s: %w", r.ID, err)
	}
	return core.ApiClient{
		ID:             r.ID,
		Name:           r.Name,
		Secret:         r.Secret,
		Active:         r.Active,
		PaymentMethods: methods,
		WebhookURL:     r.WebhookURL,
		WebsiteURL:     r.WebsiteURL,
		ContactEmail:   r.ContactEmail,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}, nil
}

func newOrderRecord(order core.Order) *orderRecord {
	return &orderRecord{
		ID:                   strings.TrimSpace(order.ID),
		Reference:            strings.TrimSpace(order.Reference),
		ClientID:             order.ClientID,
		CustomerName:         order.Customer.Name,
		CustomerEmail:        order.Customer.Email,
		Amount:               order.Amount,
		Currency:             order.Currency,
		Description:          order.Description,
		Metadata:             copyAnyMap(order.Metadata),
		Status:               string(order.Status),
		WebhookURL:           order.WebhookURL,
		SettledTransactionID: order.SettledTransactionID,
		Version:              order.Version,
		CreatedAt:            order.CreatedAt.UTC(),
		UpdatedAt:            order.UpdatedAt.UTC(),
		SettledAt:            cloneTimePointer(order.SettledAt),
		CancelledAt:          cloneTimePointer(order.CancelledAt),
	}
}

func (r *orderRecord) toDomain() core.Order {
	return core.Order{
		ID:        r.ID,
		Reference: r.Reference,
		ClientID:  r.ClientID,
		Customer: core.Customer{
			Name:  r.CustomerName,
			Email: r.CustomerEmail,
		},
		Amount:               r.Amount,
		Currency:             r.Currency,
		Description:          r.Description,
		Metadata:             copyAnyMap(r.Metadata),
		Status:               core.OrderStatus(r.Status),
		WebhookURL:           r.WebhookURL,
		SettledTransactionID: r.SettledTransactionID,
		Version:              r.Version,
		CreatedAt:            r.CreatedAt.UTC(),
		UpdatedAt:            r.UpdatedAt.UTC(),
		SettledAt:            cloneTimePointer(r.SettledAt),
		CancelledAt:          cloneTimePointer(r.CancelledAt),
	}
}

func newTransactionRecord(txn core.Transaction) *transactionRecord {
	record := &transactionRecord{
		ID:              strings.TrimSpace(txn.ID),
		Reference:       strings.TrimSpace(txn.Reference),
		OrderID:         strings.TrimSpace(txn.OrderID),
		ClientID:        txn.ClientID,
		Method:          string(txn.Method),
		Amount:          txn.Amount,
		Currency:        txn.Currency,
		Status:          string(txn.Status),
		ProviderPayload: copyAnyMap(txn.ProviderPayload),
		FailureReason:   txn.FailureReason,
		FailureKind:     txn.FailureKind,
		Version:         txn.Version,
		CreatedAt:       txn.CreatedAt.UTC(),
		UpdatedAt:       txn.UpdatedAt.UTC(),
		SettledAt:       cloneTimePointer(txn.SettledAt),
		RefundedAt:      cloneTimePointer(txn.RefundedAt),
	}
	if ref := strings.TrimSpace(txn.ProviderReference); ref != "" {
		record.ProviderReference = &ref
	}
	return record
}

func (r *transactionRecord) toDomain() core.Transaction {
	txn := core.Transaction{
		ID:              r.ID,
		Reference:       r.Reference,
		OrderID:         r.OrderID,
		ClientID:        r.ClientID,
		Method:          core.PaymentMethod(r.Method),
		Amount:          r.Amount,
		Currency:        r.Currency,
		Status:          core.TransactionStatus(r.Status),
		ProviderPayload: copyAnyMap(r.ProviderPayload),
		FailureReason:   r.FailureReason,
		FailureKind:     r.FailureKind,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
		SettledAt:       cloneTimePointer(r.SettledAt),
		RefundedAt:      cloneTimePointer(r.RefundedAt),
	}
	if r.ProviderReference != nil {
		txn.ProviderReference = *r.ProviderReference
	}
	return txn
}

func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
