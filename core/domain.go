package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

type TransactionStatus string

const (
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusSuccess    TransactionStatus = "success"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

// Terminal reports whether the status can no longer be changed by a provider outcome.
func (s TransactionStatus) Terminal() bool {
	switch s {
	case TransactionStatusSuccess, TransactionStatusFailed, TransactionStatusRefunded:
		return true
	default:
		return false
	}
}

// Captured reports whether funds were captured at some point, refunds included.
func (s TransactionStatus) Captured() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusRefunded
}

type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "card"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodMobileWallet PaymentMethod = "mobile_wallet"
	PaymentMethodStripe       PaymentMethod = "stripe"
	PaymentMethodPayPal       PaymentMethod = "paypal"
)

var knownPaymentMethods = map[PaymentMethod]struct{}{
	PaymentMethodCard:         {},
	PaymentMethodBankTransfer: {},
	PaymentMethodMobileWallet: {},
	PaymentMethodStripe:       {},
	PaymentMethodPayPal:       {},
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(value)))
	if method == "" {
		return "", NewValidationError("method", "payment method is required")
	}
	if _, ok := knownPaymentMethods[method]; !ok {
		return "", NewValidationError("method", fmt.Sprintf("unsupported payment method %q", value))
	}
	return method, nil
}

// PaymentMethodSet is the allow-list of methods a client may charge with.
type PaymentMethodSet map[PaymentMethod]struct{}

func NewPaymentMethodSet(methods ...PaymentMethod) PaymentMethodSet {
	set := make(PaymentMethodSet, len(methods))
	for _, method := range methods {
		set[method] = struct{}{}
	}
	return set
}

// DefaultPaymentMethods is the allow-list assigned to newly onboarded clients.
func DefaultPaymentMethods() PaymentMethodSet {
	return NewPaymentMethodSet(
		PaymentMethodCard,
		PaymentMethodPayPal,
		PaymentMethodMobileWallet,
		PaymentMethodBankTransfer,
	)
}

// ParsePaymentMethods builds a set from stored names and rejects unknown entries.
func ParsePaymentMethods(values []string) (PaymentMethodSet, error) {
	set := make(PaymentMethodSet, len(values))
	for _, value := range values {
		method, err := ParsePaymentMethod(value)
		if err != nil {
			return nil, err
		}
		set[method] = struct{}{}
	}
	return set, nil
}

func (s PaymentMethodSet) Allows(method PaymentMethod) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[method]
	return ok
}

func (s PaymentMethodSet) Strings() []string {
	out := make([]string, 0, len(s))
	for method := range s {
		out = append(out, string(method))
	}
	sort.Strings(out)
	return out
}

type ApiClient struct {
	ID             string
	Name           string
	Secret         string
	Active         bool
	PaymentMethods PaymentMethodSet
	WebhookURL     string
	WebsiteURL     string
	ContactEmail   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Customer struct {
	Name  string
	Email string
}

type Order struct {
	ID          string
	Reference   string
	ClientID    string
	Customer    Customer
	Amount      decimal.Decimal
	Currency    string
	Description string
	Metadata    map[string]any
	Status      OrderStatus
	WebhookURL  string
	// SettledTransactionID is the transaction holding the order's settlement claim.
	SettledTransactionID string
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
	SettledAt            *time.Time
	CancelledAt          *time.Time
}

func (o Order) Money() Money {
	return Money{Amount: o.Amount, Currency: o.Currency}
}

const (
	FailureKindDecline          = "decline"
	FailureKindTransport        = "transport"
	FailureKindDuplicateCapture = "duplicate_capture"
	// FailureKindReferenceConflict marks a transaction whose provider reference
	// is already bound to another transaction.
	FailureKindReferenceConflict = "provider_reference_conflict"
	// FailureKindSettlementWrite marks a provider success that could not be
	// persisted; the order claim is released.
	FailureKindSettlementWrite = "settlement_write_failed"
)

type Transaction struct {
	ID                string
	Reference         string
	OrderID           string
	ClientID          string
	Method            PaymentMethod
	Amount            decimal.Decimal
	Currency          string
	Status            TransactionStatus
	ProviderReference string
	ProviderPayload   map[string]any
	FailureReason     string
	FailureKind       string
	Version           int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SettledAt         *time.Time
	RefundedAt        *time.Time
}

func (t Transaction) Money() Money {
	return Money{Amount: t.Amount, Currency: t.Currency}
}

type ProviderOutcome string

const (
	ProviderOutcomeSuccess ProviderOutcome = "success"
	ProviderOutcomeFailure ProviderOutcome = "failure"
	// ProviderOutcomePending means the provider accepted the request and will
	// confirm it through a webhook.
	ProviderOutcomePending ProviderOutcome = "pending"
)

func ParseProviderOutcome(value string) (ProviderOutcome, error) {
	outcome := ProviderOutcome(strings.ToLower(strings.TrimSpace(value)))
	switch outcome {
	case ProviderOutcomeSuccess, ProviderOutcomeFailure, ProviderOutcomePending:
		return outcome, nil
	default:
		return "", NewValidationError("outcome", fmt.Sprintf("unknown provider outcome %q", value))
	}
}

type ProviderResult struct {
	Outcome           ProviderOutcome
	ProviderReference string
	DeclineReason     string
	Detail            map[string]any
}

type AuthorizeRequest struct {
	TransactionReference string
	OrderReference       string
	Method               PaymentMethod
	Amount               decimal.Decimal
	Currency             string
	Customer             Customer
	Credentials          map[string]string
}

type CreateOrderRequest struct {
	ClientID    string
	Reference   string
	Customer    Customer
	Amount      string
	Currency    string
	Description string
	Metadata    map[string]any
	WebhookURL  string
}

type DispatchRequest struct {
	ClientID       string
	OrderReference string
	Method         string
	// Amount and Currency are required and must match the order.
	Amount      string
	Currency    string
	Credentials map[string]string
}

type DispatchResult struct {
	Order       Order
	Transaction Transaction
}

type ReconcileRequest struct {
	ProviderReference string
	Outcome           ProviderOutcome
	FailureReason     string
	Detail            map[string]any
	Source            string
}

type ReconcileResult struct {
	Matched     bool
	Applied     bool
	Order       Order
	Transaction Transaction
}

type RefundRequest struct {
	ClientID             string
	TransactionReference string
	Reason               string
}

type CancelOrderRequest struct {
	ClientID       string
	OrderReference string
	Reason         string
}

type OrderFilter struct {
	ClientID string
	Status   OrderStatus
	Limit    int
	Offset   int
}

type OrderPage struct {
	Items  []Order
	Total  int
	Limit  int
	Offset int
}

const defaultOrderPageSize = 15

// Normalized trims the client id and applies the default page size.
func (f OrderFilter) Normalized() OrderFilter {
	out := f
	out.ClientID = strings.TrimSpace(out.ClientID)
	if out.Limit <= 0 {
		out.Limit = defaultOrderPageSize
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	return out
}

type EventKind string

const (
	EventPaymentSuccess  EventKind = "payment.success"
	EventPaymentFailed   EventKind = "payment.failed"
	EventPaymentRefunded EventKind = "payment.refunded"
)

// NotificationEvent is the immutable outbound payload sent to merchants.
type NotificationEvent struct {
	ID                   string
	Kind                 EventKind
	ClientID             string
	Target               string
	OrderReference       string
	TransactionReference string
	Method               PaymentMethod
	Amount               string
	Currency             string
	Status               TransactionStatus
	OrderStatus          OrderStatus
	FailureReason        string
	OccurredAt           time.Time
}

// IdempotencyKey is stable for a given transition so downstream queues can dedupe.
func (e NotificationEvent) IdempotencyKey() string {
	return string(e.Kind) + ":" + e.TransactionReference
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func mergeAnyMaps(base map[string]any, overlay map[string]any) map[string]any {
	out := copyAnyMap(base)
	for key, value := range overlay {
		out[key] = value
	}
	return out
}

func copyTimePointer(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	value := *in
	return &value
}

func cloneOrder(order Order) Order {
	out := order
	out.Metadata = copyAnyMap(order.Metadata)
	out.SettledAt = copyTimePointer(order.SettledAt)
	out.CancelledAt = copyTimePointer(order.CancelledAt)
	return out
}

func cloneTransaction(txn Transaction) Transaction {
	out := txn
	out.ProviderPayload = copyAnyMap(txn.ProviderPayload)
	out.SettledAt = copyTimePointer(txn.SettledAt)
	out.RefundedAt = copyTimePointer(txn.RefundedAt)
	return out
}

func cloneClient(client ApiClient) ApiClient {
	out := client
	out.PaymentMethods = NewPaymentMethodSet()
	for method := range client.PaymentMethods {
		out.PaymentMethods[method] = struct{}{}
	}
	return out
}
