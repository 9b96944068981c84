package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is a positive fixed-point amount in an ISO 4217 currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// ParseCurrency normalizes a currency code and rejects codes outside ISO 4217.
func ParseCurrency(code string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if len(trimmed) != 3 {
		return "", NewValidationError("currency", "currency must be a 3-letter ISO 4217 code")
	}
	unit, err := currency.ParseISO(trimmed)
	if err != nil {
		return "", NewValidationError("currency", fmt.Sprintf("unknown currency %q", trimmed))
	}
	return unit.String(), nil
}

// CurrencyScale returns the number of minor-unit digits for a currency code.
func CurrencyScale(code string) int32 {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale)
}

func ParseAmount(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, NewValidationError("amount", "amount is required")
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, NewValidationError("amount", fmt.Sprintf("amount %q is not a decimal number", trimmed))
	}
	if !amount.IsPositive() {
		return decimal.Zero, NewValidationError("amount", "amount must be greater than zero")
	}
	return amount, nil
}

func ParseMoney(amount string, currencyCode string) (Money, error) {
	code, err := ParseCurrency(currencyCode)
	if err != nil {
		return Money{}, err
	}
	parsed, err := ParseAmount(amount)
	if err != nil {
		return Money{}, err
	}
	scale := CurrencyScale(code)
	if !parsed.Equal(parsed.Truncate(scale)) {
		return Money{}, NewValidationError(
			"amount",
			fmt.Sprintf("amount %s has more than %d decimal places for %s", parsed.String(), scale, code),
		)
	}
	return Money{Amount: parsed, Currency: code}, nil
}

func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.Amount.Equal(other.Amount)
}

// AmountString renders the amount with the currency's minor-unit digits.
func (m Money) AmountString() string {
	return m.Amount.StringFixed(CurrencyScale(m.Currency))
}

func (m Money) String() string {
	return m.AmountString() + " " + m.Currency
}
