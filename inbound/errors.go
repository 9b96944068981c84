package inbound

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payments/core"
)

const TextCodeWebhookUnauthorized = "PAYMENT_WEBHOOK_UNAUTHORIZED"

func inboundError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return inboundError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundBadInput(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryBadInput,
		http.StatusBadRequest,
		core.PaymentErrorValidation,
		metadata,
	)
}

func inboundInternal(message string, metadata map[string]any) error {
	return inboundError(
		message,
		goerrors.CategoryInternal,
		http.StatusInternalServerError,
		core.PaymentErrorInternal,
		metadata,
	)
}

// processorError wraps a processor failure in an envelope whose code
// matches the status the processor chose for the provider.
func processorError(source error, result core.InboundResult, metadata map[string]any) error {
	switch result.StatusCode {
	case http.StatusUnauthorized:
		return inboundWrapError(
			source,
			goerrors.CategoryAuth,
			"inbound: webhook verification failed",
			http.StatusUnauthorized,
			TextCodeWebhookUnauthorized,
			metadata,
		)
	case http.StatusBadRequest:
		return inboundWrapError(
			source,
			goerrors.CategoryBadInput,
			"inbound: webhook payload rejected",
			http.StatusBadRequest,
			core.PaymentErrorValidation,
			metadata,
		)
	case http.StatusInternalServerError:
		return inboundWrapError(
			source,
			goerrors.CategoryOperation,
			"inbound: webhook handling failed",
			http.StatusInternalServerError,
			core.PaymentErrorInternal,
			metadata,
		)
	default:
		return inboundWrapError(
			source,
			goerrors.CategoryInternal,
			"inbound: webhook processor failed",
			http.StatusInternalServerError,
			core.PaymentErrorInternal,
			metadata,
		)
	}
}

// statusFor returns the HTTP status carried by an inbound error envelope.
func statusFor(err error) int {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code >= http.StatusBadRequest {
		return rich.Code
	}
	return http.StatusInternalServerError
}

func textCodeFor(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" {
		return rich.TextCode
	}
	return core.PaymentErrorInternal
}
