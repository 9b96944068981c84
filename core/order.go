package core

import (
	"net/url"
	"strings"
	"time"
)

// NewOrder validates a create request and builds a pending order.
func NewOrder(req CreateOrderRequest, defaultCurrency string, ids ReferenceGenerator, now time.Time) (Order, error) {
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		return Order{}, NewValidationError("client_id", "client id is required")
	}
	currencyCode := strings.TrimSpace(req.Currency)
	if currencyCode == "" {
		currencyCode = defaultCurrency
	}
	money, err := ParseMoney(req.Amount, currencyCode)
	if err != nil {
		return Order{}, err
	}
	email := strings.TrimSpace(req.Customer.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Order{}, NewValidationError("customer_email", "a valid customer email is required")
	}
	name := strings.TrimSpace(req.Customer.Name)
	if name == "" {
		return Order{}, NewValidationError("customer_name", "customer name is required")
	}
	webhookURL := strings.TrimSpace(req.WebhookURL)
	if webhookURL != "" {
		if err := validateWebhookURL(webhookURL); err != nil {
			return Order{}, err
		}
	}
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		reference = ids.OrderReference(now)
	}

	return Order{
		ID:          ids.NewID(),
		Reference:   reference,
		ClientID:    clientID,
		Customer:    Customer{Name: name, Email: email},
		Amount:      money.Amount,
		Currency:    money.Currency,
		Description: strings.TrimSpace(req.Description),
		Metadata:    copyAnyMap(req.Metadata),
		Status:      OrderStatusPending,
		WebhookURL:  webhookURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func validateWebhookURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return NewValidationError("webhook_url", "webhook url must be an absolute http(s) url")
	}
	return nil
}

// DeriveOrderStatus computes an order status from its transactions in
// creation order: paid if any captured, failed if the latest failed, pending
// otherwise. Cancellation is never derived.
func DeriveOrderStatus(transactions []Transaction) OrderStatus {
	for _, txn := range transactions {
		if txn.Status.Captured() {
			return OrderStatusPaid
		}
	}
	if len(transactions) == 0 {
		return OrderStatusPending
	}
	if transactions[len(transactions)-1].Status == TransactionStatusFailed {
		return OrderStatusFailed
	}
	return OrderStatusPending
}

// projectOrder recomputes the stored order fields that depend on its
// transactions. It reports whether anything changed.
func projectOrder(order Order, transactions []Transaction, now time.Time) (Order, bool) {
	next := cloneOrder(order)

	if claim := next.SettledTransactionID; claim != "" {
		holder, found := findTransaction(transactions, claim)
		if !found || holder.Status == TransactionStatusFailed {
			next.SettledTransactionID = ""
		}
	}
	if next.SettledTransactionID == "" {
		for _, txn := range transactions {
			if txn.Status.Captured() {
				next.SettledTransactionID = txn.ID
				break
			}
		}
	}

	switch {
	case next.SettledTransactionID != "":
		next.Status = OrderStatusPaid
	case order.Status == OrderStatusCancelled:
		next.Status = OrderStatusCancelled
	default:
		next.Status = DeriveOrderStatus(transactions)
	}

	if next.Status == OrderStatusPaid && next.SettledAt == nil {
		stamp := now
		next.SettledAt = &stamp
	}
	if next.Status != OrderStatusPaid && next.SettledTransactionID == "" && order.SettledTransactionID != "" {
		// a released claim never settled the order
		next.SettledAt = nil
	}

	changed := next.Status != order.Status ||
		next.SettledTransactionID != order.SettledTransactionID ||
		!sameTime(next.SettledAt, order.SettledAt)
	if changed {
		next.UpdatedAt = now
	}
	return next, changed
}

func findTransaction(transactions []Transaction, id string) (Transaction, bool) {
	for _, txn := range transactions {
		if txn.ID == id {
			return txn, true
		}
	}
	return Transaction{}, false
}

func sameTime(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
