package payments

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

// ProviderPack groups adapters a downstream module contributes, typically a
// replacement for one of the bundled payment methods.
type ProviderPack struct {
	Name     string
	Adapters []core.ProviderAdapter
}

type WebhookTemplatePack struct {
	Name      string
	Templates []webhooks.ProviderWebhookTemplate
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks map[string]ProviderPack
	webhookPacks  map[string]WebhookTemplatePack
	bundles       map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks: map[string]ProviderPack{},
		webhookPacks:  map[string]WebhookTemplatePack{},
		bundles:       map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("payments: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("payments: provider pack name is required")
	}
	if len(pack.Adapters) == 0 {
		return fmt.Errorf("payments: provider pack %q has no adapters", name)
	}

	normalized := ProviderPack{
		Name:     name,
		Adapters: append([]core.ProviderAdapter(nil), pack.Adapters...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("payments: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterWebhookTemplatePack(pack WebhookTemplatePack) error {
	if h == nil {
		return fmt.Errorf("payments: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("payments: webhook template pack name is required")
	}
	if len(pack.Templates) == 0 {
		return fmt.Errorf("payments: webhook template pack %q has no templates", name)
	}
	for _, template := range pack.Templates {
		if strings.TrimSpace(template.ProviderID) == "" {
			return fmt.Errorf("payments: webhook template pack %q has a template without provider id", name)
		}
		if template.Normalizer == nil {
			return fmt.Errorf("payments: webhook template %q requires a normalizer", template.ProviderID)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.webhookPacks[name]; exists {
		return fmt.Errorf("payments: webhook template pack %q already registered", name)
	}
	h.webhookPacks[name] = WebhookTemplatePack{
		Name:      name,
		Templates: append([]webhooks.ProviderWebhookTemplate(nil), pack.Templates...),
	}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("payments: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("payments: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("payments: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("payments: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyProviderPacks registers every pack adapter in pack name order. The
// registry rejects a second adapter for the same method.
func (h *ExtensionHooks) ApplyProviderPacks(registry *core.ProviderRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("payments: provider registry is required")
	}

	for _, pack := range h.ProviderPacks() {
		for _, adapter := range pack.Adapters {
			if adapter == nil {
				return fmt.Errorf("payments: provider pack %q contains nil adapter", pack.Name)
			}
			if err := registry.Register(adapter); err != nil {
				return err
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("payments: command/query service is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:     pack.Name,
			Adapters: append([]core.ProviderAdapter(nil), pack.Adapters...),
		})
	}
	return out
}

// WebhookTemplates flattens the registered template packs in pack name order.
func (h *ExtensionHooks) WebhookTemplates() []webhooks.ProviderWebhookTemplate {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.webhookPacks))
	for name := range h.webhookPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []webhooks.ProviderWebhookTemplate{}
	for _, name := range names {
		out = append(out, h.webhookPacks[name].Templates...)
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
