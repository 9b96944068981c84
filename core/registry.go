package core

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderRegistry maps each payment method to the adapter that executes it.
type ProviderRegistry struct {
	mu       sync.RWMutex
	adapters map[PaymentMethod]ProviderAdapter
}

func NewProviderRegistry(adapters ...ProviderAdapter) (*ProviderRegistry, error) {
	registry := &ProviderRegistry{adapters: make(map[PaymentMethod]ProviderAdapter)}
	for _, adapter := range adapters {
		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func (r *ProviderRegistry) Register(adapter ProviderAdapter) error {
	if adapter == nil {
		return fmt.Errorf("core: provider adapter is nil")
	}
	method, err := ParsePaymentMethod(string(adapter.Method()))
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.adapters == nil {
		r.adapters = make(map[PaymentMethod]ProviderAdapter)
	}
	if _, exists := r.adapters[method]; exists {
		return fmt.Errorf("core: provider adapter already registered for method %s", method)
	}
	r.adapters[method] = adapter
	return nil
}

func (r *ProviderRegistry) Resolve(method PaymentMethod) (ProviderAdapter, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	adapter, ok := r.adapters[method]
	r.mu.RUnlock()
	return adapter, ok
}

func (r *ProviderRegistry) Methods() []PaymentMethod {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	methods := make([]PaymentMethod, 0, len(r.adapters))
	for method := range r.adapters {
		methods = append(methods, method)
	}
	r.mu.RUnlock()
	sort.Slice(methods, func(i, j int) bool { return methods[i] < methods[j] })
	return methods
}
