package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryLedgerStore is an in-process LedgerStore with per-record versions.
type MemoryLedgerStore struct {
	mu sync.Mutex

	clients      map[string]ApiClient
	orders       map[string]Order
	orderRefs    map[string]string
	orderSeq     map[string]int64
	transactions map[string]Transaction
	txnRefs      map[string]string
	providerRefs map[string]string
	orderTxns    map[string][]string
	seq          int64
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		clients:      map[string]ApiClient{},
		orders:       map[string]Order{},
		orderRefs:    map[string]string{},
		orderSeq:     map[string]int64{},
		transactions: map[string]Transaction{},
		txnRefs:      map[string]string{},
		providerRefs: map[string]string{},
		orderTxns:    map[string][]string{},
	}
}

func (s *MemoryLedgerStore) GetClient(_ context.Context, id string) (ApiClient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	client, ok := s.clients[strings.TrimSpace(id)]
	if !ok {
		return ApiClient{}, NewNotFoundError("client", id)
	}
	return cloneClient(client), nil
}

func (s *MemoryLedgerStore) SaveClient(_ context.Context, client ApiClient) (ApiClient, error) {
	client.ID = strings.TrimSpace(client.ID)
	if client.ID == "" {
		return ApiClient{}, NewValidationError("client_id", "client id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client.ID] = cloneClient(client)
	return cloneClient(client), nil
}

func (s *MemoryLedgerStore) InsertOrder(_ context.Context, order Order) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; exists {
		return Order{}, NewConflictError("order", order.ID)
	}
	if _, exists := s.orderRefs[order.Reference]; exists {
		return Order{}, NewConflictError("order", order.Reference)
	}
	order.Version = 1
	s.seq++
	s.orders[order.ID] = cloneOrder(order)
	s.orderRefs[order.Reference] = order.ID
	s.orderSeq[order.ID] = s.seq
	return cloneOrder(order), nil
}

func (s *MemoryLedgerStore) GetOrder(_ context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[strings.TrimSpace(id)]
	if !ok {
		return Order{}, NewNotFoundError("order", id)
	}
	return cloneOrder(order), nil
}

func (s *MemoryLedgerStore) GetOrderByReference(_ context.Context, reference string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.orderRefs[strings.TrimSpace(reference)]
	if !ok {
		return Order{}, NewNotFoundError("order", reference)
	}
	return cloneOrder(s.orders[id]), nil
}

func (s *MemoryLedgerStore) PutOrder(_ context.Context, order Order, expectedVersion int64) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.orders[order.ID]
	if !ok {
		return Order{}, NewNotFoundError("order", order.ID)
	}
	if current.Version != expectedVersion {
		return Order{}, NewConflictError("order", order.ID)
	}
	order.Reference = current.Reference
	order.Version = expectedVersion + 1
	s.orders[order.ID] = cloneOrder(order)
	return cloneOrder(order), nil
}

func (s *MemoryLedgerStore) ListOrders(_ context.Context, filter OrderFilter) (OrderPage, error) {
	filter = filter.Normalized()
	s.mu.Lock()
	matched := make([]Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.ClientID != "" && order.ClientID != filter.ClientID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		matched = append(matched, cloneOrder(order))
	}
	seq := make(map[string]int64, len(matched))
	for _, order := range matched {
		seq[order.ID] = s.orderSeq[order.ID]
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		return seq[matched[i].ID] > seq[matched[j].ID]
	})
	page := OrderPage{Total: len(matched), Limit: filter.Limit, Offset: filter.Offset}
	if filter.Offset >= len(matched) {
		page.Items = []Order{}
		return page, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	page.Items = matched[filter.Offset:end]
	return page, nil
}

func (s *MemoryLedgerStore) InsertTransaction(_ context.Context, txn Transaction) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[txn.OrderID]; !ok {
		return Transaction{}, NewNotFoundError("order", txn.OrderID)
	}
	if _, exists := s.transactions[txn.ID]; exists {
		return Transaction{}, NewConflictError("transaction", txn.ID)
	}
	if _, exists := s.txnRefs[txn.Reference]; exists {
		return Transaction{}, NewConflictError("transaction", txn.Reference)
	}
	if err := s.checkProviderReferenceLocked(txn); err != nil {
		return Transaction{}, err
	}
	txn.Version = 1
	s.transactions[txn.ID] = cloneTransaction(txn)
	s.txnRefs[txn.Reference] = txn.ID
	if ref := strings.TrimSpace(txn.ProviderReference); ref != "" {
		s.providerRefs[ref] = txn.ID
	}
	s.orderTxns[txn.OrderID] = append(s.orderTxns[txn.OrderID], txn.ID)
	return cloneTransaction(txn), nil
}

func (s *MemoryLedgerStore) GetTransaction(_ context.Context, id string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	txn, ok := s.transactions[strings.TrimSpace(id)]
	if !ok {
		return Transaction{}, NewNotFoundError("transaction", id)
	}
	return cloneTransaction(txn), nil
}

func (s *MemoryLedgerStore) GetTransactionByReference(_ context.Context, reference string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.txnRefs[strings.TrimSpace(reference)]
	if !ok {
		return Transaction{}, NewNotFoundError("transaction", reference)
	}
	return cloneTransaction(s.transactions[id]), nil
}

func (s *MemoryLedgerStore) FindTransactionByProviderReference(_ context.Context, providerReference string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.providerRefs[strings.TrimSpace(providerReference)]
	if !ok {
		return Transaction{}, NewNotFoundError("provider reference", providerReference)
	}
	return cloneTransaction(s.transactions[id]), nil
}

func (s *MemoryLedgerStore) PutTransaction(_ context.Context, txn Transaction, expectedVersion int64) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.transactions[txn.ID]
	if !ok {
		return Transaction{}, NewNotFoundError("transaction", txn.ID)
	}
	if current.Version != expectedVersion {
		return Transaction{}, NewConflictError("transaction", txn.ID)
	}
	if err := s.checkProviderReferenceLocked(txn); err != nil {
		return Transaction{}, err
	}
	txn.Reference = current.Reference
	txn.OrderID = current.OrderID
	txn.Version = expectedVersion + 1
	s.transactions[txn.ID] = cloneTransaction(txn)
	if ref := strings.TrimSpace(txn.ProviderReference); ref != "" {
		s.providerRefs[ref] = txn.ID
	}
	return cloneTransaction(txn), nil
}

func (s *MemoryLedgerStore) ListTransactionsByOrder(_ context.Context, orderID string) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.orderTxns[strings.TrimSpace(orderID)]
	out := make([]Transaction, 0, len(ids))
	for _, id := range ids {
		out = append(out, cloneTransaction(s.transactions[id]))
	}
	return out, nil
}

func (s *MemoryLedgerStore) checkProviderReferenceLocked(txn Transaction) error {
	ref := strings.TrimSpace(txn.ProviderReference)
	if ref == "" {
		return nil
	}
	if owner, ok := s.providerRefs[ref]; ok && owner != txn.ID {
		return NewInvalidStateError(
			fmt.Sprintf("provider reference %q is already bound to another transaction", ref),
			map[string]any{"provider_reference": ref, "transaction_id": owner},
		)
	}
	return nil
}
