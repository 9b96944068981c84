package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"
	paymentmigrations "github.com/goliatone/go-payments/migrations"
	"github.com/goliatone/go-payments/providers/devkit"
	sqlstore "github.com/goliatone/go-payments/store/sql"
	"github.com/goliatone/go-payments/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-payments-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{
		"payment_api_clients",
		"payment_orders",
		"payment_transactions",
		"payment_webhook_deliveries",
	} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected table %s, got %q", table, tableName)
		}
	}
}

func TestLedgerStore_ClientRoundTrip(t *testing.T) {
	store := newLedgerStore(t)
	ctx := context.Background()

	if _, err := store.GetClient(ctx, "client_missing"); !core.IsNotFoundError(err) {
		t.Fatalf("expected not found for unknown client, got %v", err)
	}

	saved, err := store.SaveClient(ctx, sampleClient("client_1"))
	if err != nil {
		t.Fatalf("save client: %v", err)
	}
	if !saved.PaymentMethods.Allows(core.PaymentMethodCard) || saved.PaymentMethods.Allows(core.PaymentMethodStripe) {
		t.Fatalf("expected payment methods to round trip, got %v", saved.PaymentMethods.Strings())
	}

	saved.Active = false
	saved.WebhookURL = "https://merchant.example.com/v2/hooks"
	if _, err := store.SaveClient(ctx, saved); err != nil {
		t.Fatalf("update client: %v", err)
	}
	loaded, err := store.GetClient(ctx, "client_1")
	if err != nil {
		t.Fatalf("get client: %v", err)
	}
	if loaded.Active || loaded.WebhookURL != "https://merchant.example.com/v2/hooks" || loaded.Secret != "secret_1" {
		t.Fatalf("expected updated client, got %+v", loaded)
	}
}

func TestLedgerStore_OrderVersioning(t *testing.T) {
	store := newLedgerStore(t)
	ctx := context.Background()
	mustSaveClient(t, store, "client_1")

	order, err := store.InsertOrder(ctx, sampleOrder("order_1", "ORD_1", "client_1", baseTime))
	if err != nil {
		t.Fatalf("insert order: %v", err)
	}
	if order.Version != 1 {
		t.Fatalf("expected version 1 after insert, got %d", order.Version)
	}
	if _, err := store.InsertOrder(ctx, sampleOrder("order_2", "ORD_1", "client_1", baseTime)); !core.IsConflictError(err) {
		t.Fatalf("expected duplicate reference conflict, got %v", err)
	}

	loaded, err := store.GetOrderByReference(ctx, "ORD_1")
	if err != nil {
		t.Fatalf("get order by reference: %v", err)
	}
	if !loaded.Amount.Equal(decimal.RequireFromString("1000.00")) || loaded.Metadata["cart"] != "A-1" {
		t.Fatalf("expected amount and metadata to round trip, got %+v", loaded)
	}

	settledAt := baseTime.Add(time.Minute)
	loaded.Status = core.OrderStatusPaid
	loaded.SettledTransactionID = "txn_1"
	loaded.SettledAt = &settledAt
	updated, err := store.PutOrder(ctx, loaded, 1)
	if err != nil {
		t.Fatalf("put order: %v", err)
	}
	if updated.Version != 2 || updated.Status != core.OrderStatusPaid {
		t.Fatalf("expected version 2 paid order, got %+v", updated)
	}

	stale := loaded
	stale.Status = core.OrderStatusCancelled
	if _, err := store.PutOrder(ctx, stale, 1); !core.IsConflictError(err) {
		t.Fatalf("expected stale version conflict, got %v", err)
	}
	current, err := store.GetOrder(ctx, "order_1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if current.Status != core.OrderStatusPaid || current.Version != 2 || current.SettledAt == nil {
		t.Fatalf("expected stale write to leave order untouched, got %+v", current)
	}
	if _, err := store.PutOrder(ctx, sampleOrder("order_missing", "ORD_X", "client_1", baseTime), 1); !core.IsNotFoundError(err) {
		t.Fatalf("expected not found for unknown order, got %v", err)
	}
}

func TestLedgerStore_ListOrdersNewestFirst(t *testing.T) {
	store := newLedgerStore(t)
	ctx := context.Background()
	mustSaveClient(t, store, "client_1")
	mustSaveClient(t, store, "client_2")

	for i := 0; i < 20; i++ {
		clientID := "client_1"
		if i%5 == 0 {
			clientID = "client_2"
		}
		order := sampleOrder(
			fmt.Sprintf("order_%02d", i),
			fmt.Sprintf("ORD_%02d", i),
			clientID,
			baseTime.Add(time.Duration(i)*time.Second),
		)
		if _, err := store.InsertOrder(ctx, order); err != nil {
			t.Fatalf("insert order %d: %v", i, err)
		}
	}

	page, err := store.ListOrders(ctx, core.OrderFilter{ClientID: "client_1"})
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if page.Total != 16 || page.Limit != 15 || len(page.Items) != 15 {
		t.Fatalf("expected default page of 15 out of 16, got total=%d limit=%d items=%d", page.Total, page.Limit, len(page.Items))
	}
	if page.Items[0].Reference != "ORD_19" {
		t.Fatalf("expected newest order first, got %s", page.Items[0].Reference)
	}

	next, err := store.ListOrders(ctx, core.OrderFilter{ClientID: "client_1", Limit: 15, Offset: 15})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(next.Items) != 1 || next.Items[0].Reference != "ORD_01" {
		t.Fatalf("expected oldest client_1 order on second page, got %+v", next.Items)
	}

	pending, err := store.ListOrders(ctx, core.OrderFilter{Status: core.OrderStatusPaid})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if pending.Total != 0 {
		t.Fatalf("expected no paid orders, got %d", pending.Total)
	}
}

func TestLedgerStore_TransactionsAndProviderReferences(t *testing.T) {
	store := newLedgerStore(t)
	ctx := context.Background()
	mustSaveClient(t, store, "client_1")
	if _, err := store.InsertOrder(ctx, sampleOrder("order_1", "ORD_1", "client_1", baseTime)); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	if _, err := store.InsertTransaction(ctx, sampleTransaction("txn_x", "TXN_X", "order_missing")); !core.IsNotFoundError(err) {
		t.Fatalf("expected unknown order to be rejected, got %v", err)
	}

	first := sampleTransaction("txn_1", "TXN_1", "order_1")
	first.ProviderReference = "pi_1"
	if _, err := store.InsertTransaction(ctx, first); err != nil {
		t.Fatalf("insert first transaction: %v", err)
	}
	second := sampleTransaction("txn_2", "TXN_2", "order_1")
	second.CreatedAt = baseTime.Add(-time.Hour)
	inserted, err := store.InsertTransaction(ctx, second)
	if err != nil {
		t.Fatalf("insert second transaction: %v", err)
	}
	if _, err := store.InsertTransaction(ctx, sampleTransaction("txn_3", "TXN_1", "order_1")); !core.IsConflictError(err) {
		t.Fatalf("expected duplicate transaction reference conflict, got %v", err)
	}

	listed, err := store.ListTransactionsByOrder(ctx, "order_1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(listed) != 2 || listed[0].Reference != "TXN_1" || listed[1].Reference != "TXN_2" {
		t.Fatalf("expected creation order, got %+v", listed)
	}

	found, err := store.FindTransactionByProviderReference(ctx, "pi_1")
	if err != nil || found.ID != "txn_1" {
		t.Fatalf("expected provider reference lookup, got %+v %v", found, err)
	}
	if _, err := store.FindTransactionByProviderReference(ctx, ""); !core.IsNotFoundError(err) {
		t.Fatalf("expected empty provider reference to be not found, got %v", err)
	}

	inserted.ProviderReference = "pi_1"
	if _, err := store.PutTransaction(ctx, inserted, 1); !core.IsInvalidStateError(err) {
		t.Fatalf("expected provider reference collision to be invalid state, got %v", err)
	}

	settledAt := baseTime.Add(time.Minute)
	inserted.ProviderReference = "pi_2"
	inserted.Status = core.TransactionStatusSuccess
	inserted.SettledAt = &settledAt
	inserted.ProviderPayload = map[string]any{"provider": "card"}
	updated, err := store.PutTransaction(ctx, inserted, 1)
	if err != nil {
		t.Fatalf("put transaction: %v", err)
	}
	if updated.Version != 2 || updated.Reference != "TXN_2" || updated.OrderID != "order_1" {
		t.Fatalf("expected immutable identity with version bump, got %+v", updated)
	}
	if _, err := store.PutTransaction(ctx, inserted, 1); !core.IsConflictError(err) {
		t.Fatalf("expected stale transaction write to conflict, got %v", err)
	}
	loaded, err := store.GetTransactionByReference(ctx, "TXN_2")
	if err != nil {
		t.Fatalf("get transaction: %v", err)
	}
	if loaded.Status != core.TransactionStatusSuccess || loaded.ProviderReference != "pi_2" || loaded.ProviderPayload["provider"] != "card" {
		t.Fatalf("expected persisted success, got %+v", loaded)
	}
}

func TestLedgerStore_ConcurrentPutOnlyOneWins(t *testing.T) {
	store := newLedgerStore(t)
	ctx := context.Background()
	mustSaveClient(t, store, "client_1")
	order, err := store.InsertOrder(ctx, sampleOrder("order_1", "ORD_1", "client_1", baseTime))
	if err != nil {
		t.Fatalf("insert order: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := order
			next.Description = fmt.Sprintf("writer %d", i)
			_, err := store.PutOrder(ctx, next, order.Version)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case core.IsConflictError(err):
				conflicts++
			default:
				t.Errorf("unexpected put error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if wins != 1 || conflicts != 7 {
		t.Fatalf("expected one winner and seven conflicts, got wins=%d conflicts=%d", wins, conflicts)
	}
}

func TestLedgerStore_ConcurrentInsertsGetDistinctPositions(t *testing.T) {
	store := newLedgerStore(t)
	ctx := context.Background()
	mustSaveClient(t, store, "client_1")
	if _, err := store.InsertOrder(ctx, sampleOrder("order_1", "ORD_1", "client_1", baseTime)); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			txn := sampleTransaction(fmt.Sprintf("txn_%d", i), fmt.Sprintf("TXN_%d", i), "order_1")
			_, errs[i] = store.InsertTransaction(ctx, txn)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	listed, err := store.ListTransactionsByOrder(ctx, "order_1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(listed) != writers {
		t.Fatalf("expected %d transactions, got %d", writers, len(listed))
	}
	seen := map[string]bool{}
	for _, txn := range listed {
		if seen[txn.ID] {
			t.Fatalf("transaction %s listed twice", txn.ID)
		}
		seen[txn.ID] = true
	}

	if _, err := store.InsertTransaction(ctx, sampleTransaction("txn_last", "TXN_LAST", "order_1")); err != nil {
		t.Fatalf("insert after concurrent writers: %v", err)
	}
	listed, err = store.ListTransactionsByOrder(ctx, "order_1")
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(listed) != writers+1 || listed[writers].ID != "txn_last" {
		t.Fatalf("expected newest insert last, got %+v", listed)
	}
}

func TestService_DispatchPersistsThroughSQLStore(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	registry, err := core.NewProviderRegistry(capturingAdapter{reference: "card_ref_1"})
	if err != nil {
		t.Fatalf("provider registry: %v", err)
	}
	svc, err := core.NewService(
		core.DefaultConfig(),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(sqlstore.NewRepositoryFactory()),
		core.WithProviderResolver(registry),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, ok := svc.Dependencies().LedgerStore.(*sqlstore.LedgerStore); !ok {
		t.Fatalf("expected service to use the sql ledger store, got %T", svc.Dependencies().LedgerStore)
	}

	if _, err := svc.RegisterClient(ctx, sampleClient("client_1")); err != nil {
		t.Fatalf("register client: %v", err)
	}
	order, err := svc.CreateOrder(ctx, core.CreateOrderRequest{
		ClientID: "client_1",
		Customer: core.Customer{Name: "Ada", Email: "ada@example.com"},
		Amount:   "25.50",
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	result, err := svc.DispatchTransaction(ctx, core.DispatchRequest{
		ClientID:       "client_1",
		OrderReference: order.Reference,
		Amount:         order.Money().AmountString(),
		Currency:       order.Currency,
		Method:         "card",
		Credentials:    map[string]string{"card_number": "4242424242424242"},
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if result.Transaction.Status != core.TransactionStatusSuccess || result.Order.Status != core.OrderStatusPaid {
		t.Fatalf("expected paid order, got %+v", result)
	}

	reloaded, err := svc.GetOrder(ctx, "client_1", order.Reference)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if reloaded.Status != core.OrderStatusPaid || reloaded.SettledTransactionID != result.Transaction.ID {
		t.Fatalf("expected persisted settlement, got %+v", reloaded)
	}
	txns, err := svc.ListTransactions(ctx, "client_1", order.Reference)
	if err != nil || len(txns) != 1 || txns[0].ProviderReference != "card_ref_1" {
		t.Fatalf("expected one persisted transaction, got %+v %v", txns, err)
	}
}

func TestWebhookDeliveryStore_Conformance(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if err := devkit.ValidateWebhookLedgerConformance(
		context.Background(),
		factory.WebhookDeliveryStore(),
		"stripe",
		"evt_conformance_1",
	); err != nil {
		t.Fatalf("ledger conformance: %v", err)
	}
}

func TestWebhookDeliveryStore_DeadLettersAfterMaxAttempts(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	now := baseTime
	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new delivery store: %v", err)
	}
	store.WithClock(func() time.Time { return now })

	for attempt := 1; attempt <= 3; attempt++ {
		record, accepted, err := store.Claim(ctx, "paypal", "WH-1:a", []byte(`{}`), time.Minute)
		if err != nil || !accepted {
			t.Fatalf("claim attempt %d: accepted=%v err=%v", attempt, accepted, err)
		}
		if record.Attempts != attempt || record.ClaimID != fmt.Sprintf("paypal:WH-1:a:%d", attempt) {
			t.Fatalf("unexpected claim record %+v", record)
		}
		if err := store.Fail(ctx, record.ClaimID, errors.New("handler failed"), time.Time{}, 3); err != nil {
			t.Fatalf("fail attempt %d: %v", attempt, err)
		}
		now = now.Add(time.Second)
	}

	dead, err := store.Get(ctx, "paypal", "WH-1:a")
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if dead.Status != webhooks.DeliveryStatusDead || dead.LastError != "handler failed" || dead.NextAttemptAt != nil {
		t.Fatalf("expected dead delivery, got %+v", dead)
	}
	if _, accepted, err := store.Claim(ctx, "paypal", "WH-1:a", nil, time.Minute); err != nil || accepted {
		t.Fatalf("expected dead delivery to stay unclaimable, accepted=%v err=%v", accepted, err)
	}
}

func TestWebhookDeliveryStore_StaleClaimIsIgnored(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	ctx := context.Background()

	now := baseTime
	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new delivery store: %v", err)
	}
	store.WithClock(func() time.Time { return now })

	first, accepted, err := store.Claim(ctx, "stripe", "evt_1", nil, time.Second)
	if err != nil || !accepted {
		t.Fatalf("first claim: accepted=%v err=%v", accepted, err)
	}
	now = now.Add(2 * time.Second)
	second, accepted, err := store.Claim(ctx, "stripe", "evt_1", nil, time.Minute)
	if err != nil || !accepted {
		t.Fatalf("expected expired lease to be reclaimed, accepted=%v err=%v", accepted, err)
	}

	if err := store.Complete(ctx, first.ClaimID); err != nil {
		t.Fatalf("complete stale claim: %v", err)
	}
	loaded, err := store.Get(ctx, "stripe", "evt_1")
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if loaded.Status != webhooks.DeliveryStatusProcessing || loaded.Attempts != 2 {
		t.Fatalf("expected stale completion to be ignored, got %+v", loaded)
	}
	if err := store.Complete(ctx, second.ClaimID); err != nil {
		t.Fatalf("complete current claim: %v", err)
	}
	if loaded, _ = store.Get(ctx, "stripe", "evt_1"); loaded.Status != webhooks.DeliveryStatusProcessed {
		t.Fatalf("expected processed delivery, got %+v", loaded)
	}
	if err := store.Complete(ctx, "not-a-claim"); err == nil {
		t.Fatalf("expected malformed claim id to fail")
	}
}

func TestOpen_SQLiteMigratesSchema(t *testing.T) {
	ctx := context.Background()
	client, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:payments-open-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano()),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = client.Close() }()

	var count int
	if err := client.DB().NewRaw(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'payment_%'",
	).Scan(ctx, &count); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 payment tables, got %d", count)
	}

	if _, err := sqlstore.Open(ctx, sqlstore.Config{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
}

var baseTime = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

type capturingAdapter struct {
	reference string
}

func (capturingAdapter) Method() core.PaymentMethod {
	return core.PaymentMethodCard
}

func (a capturingAdapter) Authorize(context.Context, core.AuthorizeRequest) (core.ProviderResult, error) {
	return core.ProviderResult{
		Outcome:           core.ProviderOutcomeSuccess,
		ProviderReference: a.reference,
		Detail:            map[string]any{"provider": "card"},
	}, nil
}

func sampleClient(id string) core.ApiClient {
	return core.ApiClient{
		ID:             id,
		Name:           "Acme",
		Secret:         "secret_1",
		Active:         true,
		PaymentMethods: core.NewPaymentMethodSet(core.PaymentMethodCard, core.PaymentMethodPayPal),
		WebhookURL:     "https://merchant.example.com/hooks",
		CreatedAt:      baseTime,
		UpdatedAt:      baseTime,
	}
}

func sampleOrder(id string, reference string, clientID string, createdAt time.Time) core.Order {
	return core.Order{
		ID:        id,
		Reference: reference,
		ClientID:  clientID,
		Customer:  core.Customer{Name: "Ada", Email: "ada@example.com"},
		Amount:    decimal.RequireFromString("1000.00"),
		Currency:  "USD",
		Metadata:  map[string]any{"cart": "A-1"},
		Status:    core.OrderStatusPending,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func sampleTransaction(id string, reference string, orderID string) core.Transaction {
	return core.Transaction{
		ID:        id,
		Reference: reference,
		OrderID:   orderID,
		ClientID:  "client_1",
		Method:    core.PaymentMethodCard,
		Amount:    decimal.RequireFromString("1000.00"),
		Currency:  "USD",
		Status:    core.TransactionStatusProcessing,
		CreatedAt: baseTime,
		UpdatedAt: baseTime,
	}
}

func mustSaveClient(t *testing.T, store core.LedgerStore, id string) {
	t.Helper()
	if _, err := store.SaveClient(context.Background(), sampleClient(id)); err != nil {
		t.Fatalf("save client %s: %v", id, err)
	}
}

func newLedgerStore(t *testing.T) *sqlstore.LedgerStore {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)
	store, err := sqlstore.NewLedgerStore(client.DB())
	if err != nil {
		t.Fatalf("new ledger store: %v", err)
	}
	return store
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:payments-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = paymentmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != paymentmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, paymentmigrations.WithValidationTargets(paymentmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
