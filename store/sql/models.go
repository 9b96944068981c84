package sqlstore

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type apiClientRecord struct {
	bun.BaseModel `bun:"table:payment_api_clients,alias:pac"`

	ID             string    `bun:"id,pk"`
	Name           string    `bun:"name,notnull"`
	Secret         string    `bun:"secret,notnull"`
	Active         bool      `bun:"active,notnull"`
	PaymentMethods []string  `bun:"payment_methods,type:jsonb,notnull"`
	WebhookURL     string    `bun:"webhook_url"`
	WebsiteURL     string    `bun:"website_url"`
	ContactEmail   string    `bun:"contact_email"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// Amounts are stored as decimal text so both dialects keep exact cents.
type orderRecord struct {
	bun.BaseModel `bun:"table:payment_orders,alias:po"`

	ID                   string          `bun:"id,pk"`
	Reference            string          `bun:"reference,notnull"`
	ClientID             string          `bun:"client_id,notnull"`
	CustomerName         string          `bun:"customer_name,notnull"`
	CustomerEmail        string          `bun:"customer_email,notnull"`
	Amount               decimal.Decimal `bun:"amount,type:text,notnull"`
	Currency             string          `bun:"currency,notnull"`
	Description          string          `bun:"description"`
	Metadata             map[string]any  `bun:"metadata,type:jsonb,notnull"`
	Status               string          `bun:"status,notnull"`
	WebhookURL           string          `bun:"webhook_url"`
	SettledTransactionID string          `bun:"settled_transaction_id"`
	Version              int64           `bun:"version,notnull"`
	CreatedAt            time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	SettledAt            *time.Time      `bun:"settled_at,nullzero"`
	CancelledAt          *time.Time      `bun:"cancelled_at,nullzero"`
}

type transactionRecord struct {
	bun.BaseModel `bun:"table:payment_transactions,alias:pt"`

	ID        string `bun:"id,pk"`
	Reference string `bun:"reference,notnull"`
	OrderID   string `bun:"order_id,notnull"`
	// Position orders transactions within their order.
	Position          int64           `bun:"position,notnull"`
	ClientID          string          `bun:"client_id,notnull"`
	Method            string          `bun:"method,notnull"`
	Amount            decimal.Decimal `bun:"amount,type:text,notnull"`
	Currency          string          `bun:"currency,notnull"`
	Status            string          `bun:"status,notnull"`
	ProviderReference *string         `bun:"provider_reference,nullzero"`
	ProviderPayload   map[string]any  `bun:"provider_payload,type:jsonb,notnull"`
	FailureReason     string          `bun:"failure_reason"`
	FailureKind       string          `bun:"failure_kind"`
	Version           int64           `bun:"version,notnull"`
	CreatedAt         time.Time       `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time       `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	SettledAt         *time.Time      `bun:"settled_at,nullzero"`
	RefundedAt        *time.Time      `bun:"refunded_at,nullzero"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:payment_webhook_deliveries,alias:pwd"`

	ID            string     `bun:"id,pk"`
	ProviderID    string     `bun:"provider_id,notnull"`
	DeliveryID    string     `bun:"delivery_id,notnull"`
	Status        string     `bun:"status,notnull"`
	Attempts      int        `bun:"attempts,notnull"`
	LastError     string     `bun:"last_error"`
	NextAttemptAt *time.Time `bun:"next_attempt_at,nullzero"`
	Payload       []byte     `bun:"payload"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
