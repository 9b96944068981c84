package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payments/core"
)

const (
	SurfaceWebhook = "webhook"

	DefaultMaxBodyBytes int64 = 1 << 20
)

// WebhookProcessor handles every callback of a single provider.
type WebhookProcessor interface {
	ProviderID() string
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

// Router resolves a provider id to its registered processor.
type Router struct {
	Logger       core.Logger
	MaxBodyBytes int64

	mu         sync.RWMutex
	processors map[string]WebhookProcessor
}

func NewRouter(processors ...WebhookProcessor) (*Router, error) {
	router := &Router{
		Logger:       glog.Nop(),
		MaxBodyBytes: DefaultMaxBodyBytes,
		processors:   map[string]WebhookProcessor{},
	}
	for _, processor := range processors {
		if err := router.Register(processor); err != nil {
			return nil, err
		}
	}
	return router, nil
}

func (r *Router) Register(processor WebhookProcessor) error {
	if r == nil {
		return inboundInternal("inbound: router is nil", nil)
	}
	if processor == nil {
		return inboundBadInput("inbound: processor is nil", nil)
	}
	providerID := normalizeProviderID(processor.ProviderID())
	if providerID == "" {
		return inboundBadInput("inbound: processor provider id is required", nil)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.processors == nil {
		r.processors = map[string]WebhookProcessor{}
	}
	if _, exists := r.processors[providerID]; exists {
		return inboundError(
			fmt.Sprintf("inbound: processor already registered for provider %q", providerID),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.PaymentErrorConflict,
			map[string]any{"provider_id": providerID},
		)
	}
	r.processors[providerID] = processor
	return nil
}

// Providers lists the registered provider ids in sorted order.
func (r *Router) Providers() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.processors))
	for id := range r.processors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Router) Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if r == nil {
		return core.InboundResult{}, inboundInternal("inbound: router is nil", nil)
	}
	providerID := normalizeProviderID(req.ProviderID)
	if providerID == "" {
		return core.InboundResult{}, inboundBadInput("inbound: provider id is required", nil)
	}
	req.ProviderID = providerID
	if strings.TrimSpace(req.Surface) == "" {
		req.Surface = SurfaceWebhook
	}

	processor := r.processorFor(providerID)
	if processor == nil {
		return core.InboundResult{
				Accepted:   false,
				StatusCode: http.StatusNotFound,
			}, inboundError(
				fmt.Sprintf("inbound: no processor registered for provider %q", providerID),
				goerrors.CategoryNotFound,
				http.StatusNotFound,
				core.PaymentErrorNotFound,
				map[string]any{"provider_id": providerID},
			)
	}

	result, err := processor.Process(ctx, req)
	if err != nil {
		wrapped := processorError(err, result, map[string]any{"provider_id": providerID})
		if result.StatusCode == 0 {
			result.StatusCode = statusFor(wrapped)
		}
		r.logger(ctx).Error("inbound webhook failed",
			"provider_id", providerID,
			"status_code", result.StatusCode,
			"error", err.Error(),
		)
		return result, wrapped
	}
	if result.StatusCode == 0 {
		result.StatusCode = http.StatusOK
	}
	return result, nil
}

// ServeHTTP accepts POST callbacks on a path ending in the provider id, for
// example /webhooks/stripe. A "provider" path value takes precedence when the
// route was registered with a pattern.
func (r *Router) ServeHTTP(w http.ResponseWriter, httpReq *http.Request) {
	if httpReq.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody(
			core.PaymentErrorValidation,
			"inbound: method not allowed",
		))
		return
	}
	providerID := providerFromRequest(httpReq)

	limit := r.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, httpReq.Body, limit))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, errorBody(core.PaymentErrorValidation, "inbound: read body: "+err.Error()))
		return
	}

	result, err := r.Dispatch(httpReq.Context(), core.InboundRequest{
		ProviderID: providerID,
		Surface:    SurfaceWebhook,
		Headers:    flattenHeaders(httpReq.Header),
		Body:       body,
		Metadata: map[string]any{
			"remote_addr": httpReq.RemoteAddr,
			"path":        httpReq.URL.Path,
		},
	})
	if err != nil {
		status := result.StatusCode
		if status < http.StatusBadRequest {
			status = statusFor(err)
		}
		writeJSON(w, status, errorBody(textCodeFor(err), err.Error()))
		return
	}
	writeJSON(w, result.StatusCode, map[string]any{
		"accepted": result.Accepted,
		"metadata": result.Metadata,
	})
}

func (r *Router) processorFor(providerID string) WebhookProcessor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.processors[normalizeProviderID(providerID)]
}

func (r *Router) logger(ctx context.Context) core.Logger {
	logger := glog.Ensure(r.Logger)
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	return logger
}

func providerFromRequest(req *http.Request) string {
	if value := strings.TrimSpace(req.PathValue("provider")); value != "" {
		return value
	}
	path := strings.Trim(req.URL.Path, "/")
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		path = path[idx+1:]
	}
	return path
}

func flattenHeaders(header http.Header) map[string]string {
	headers := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}
	return headers
}

func normalizeProviderID(providerID string) string {
	return strings.ToLower(strings.TrimSpace(providerID))
}

func errorBody(textCode string, message string) map[string]any {
	return map[string]any{
		"accepted": false,
		"error": map[string]any{
			"text_code": textCode,
			"message":   message,
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
