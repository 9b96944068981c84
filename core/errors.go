package core

import (
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	PaymentErrorValidation        = "PAYMENT_VALIDATION"
	PaymentErrorPolicy            = "PAYMENT_POLICY"
	PaymentErrorNotFound          = "PAYMENT_NOT_FOUND"
	PaymentErrorInvalidState      = "PAYMENT_INVALID_STATE"
	PaymentErrorConflict          = "PAYMENT_CONFLICT"
	PaymentErrorProviderTransport = "PAYMENT_PROVIDER_TRANSPORT"
	PaymentErrorInternal          = "PAYMENT_INTERNAL_ERROR"
)

func NewValidationError(field string, message string) error {
	return goerrors.NewValidation(message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(PaymentErrorValidation).
		WithSeverity(goerrors.SeverityError)
}

func NewPolicyError(message string, metadata map[string]any) error {
	return newPaymentError(message, goerrors.CategoryAuthz, PaymentErrorPolicy, metadata)
}

func NewNotFoundError(resource string, key string) error {
	return newPaymentError(
		fmt.Sprintf("%s %q not found", resource, key),
		goerrors.CategoryNotFound,
		PaymentErrorNotFound,
		map[string]any{"resource": resource, "key": key},
	)
}

func NewInvalidStateError(message string, metadata map[string]any) error {
	return newPaymentError(message, goerrors.CategoryOperation, PaymentErrorInvalidState, metadata)
}

func NewConflictError(resource string, id string) error {
	return newPaymentError(
		fmt.Sprintf("%s %q was modified concurrently", resource, id),
		goerrors.CategoryConflict,
		PaymentErrorConflict,
		map[string]any{"resource": resource, "id": id},
	)
}

func NewProviderTransportError(source error, method PaymentMethod) error {
	err := goerrors.Wrap(source, goerrors.CategoryExternal, "payment provider unreachable").
		WithCode(http.StatusBadGateway).
		WithTextCode(PaymentErrorProviderTransport)
	err.WithMetadata(map[string]any{"method": string(method)})
	return err
}

func newPaymentError(message string, category goerrors.Category, textCode string, metadata map[string]any) error {
	err := goerrors.New(message, category).
		WithCode(paymentHTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func IsValidationError(err error) bool {
	return hasTextCode(err, PaymentErrorValidation)
}

func IsPolicyError(err error) bool {
	return hasTextCode(err, PaymentErrorPolicy)
}

func IsNotFoundError(err error) bool {
	return hasTextCode(err, PaymentErrorNotFound)
}

func IsInvalidStateError(err error) bool {
	return hasTextCode(err, PaymentErrorInvalidState)
}

func IsConflictError(err error) bool {
	return hasTextCode(err, PaymentErrorConflict)
}

func IsProviderTransportError(err error) bool {
	return hasTextCode(err, PaymentErrorProviderTransport)
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return false
	}
	return rich.TextCode == code
}

func paymentErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensurePaymentErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return ensurePaymentErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return ensurePaymentErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensurePaymentErrorEnvelope(mapped)
}

func ensurePaymentErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = paymentHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultPaymentTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultPaymentTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return PaymentErrorValidation
	case goerrors.CategoryNotFound:
		return PaymentErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return PaymentErrorPolicy
	case goerrors.CategoryConflict:
		return PaymentErrorConflict
	case goerrors.CategoryOperation:
		return PaymentErrorInvalidState
	case goerrors.CategoryExternal:
		return PaymentErrorProviderTransport
	default:
		return PaymentErrorInternal
	}
}

func paymentHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict, goerrors.CategoryOperation:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
