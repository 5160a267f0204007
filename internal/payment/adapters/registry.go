package adapters

import (
	"sort"
	"strings"

	"github.com/thinktestai/thinktest/internal/config"
	"github.com/thinktestai/thinktest/internal/payment/domain"
)

// Settings holds per-gateway adapter configuration keyed by provider name.
type Settings map[string]map[string]any

// SettingsFromConfig collects the webhook secrets of the configured gateways.
func SettingsFromConfig(cfg config.Config) Settings {
	settings := Settings{}
	if secret := strings.TrimSpace(cfg.Stripe.WebhookSecret); secret != "" {
		settings["stripe"] = map[string]any{"webhook_secret": secret}
	}
	return settings
}

// Registry holds the webhook adapter of every gateway, built once at startup.
// A gateway whose settings are missing or invalid stays known but unusable.
type Registry struct {
	ready  map[string]domain.PaymentAdapter
	broken map[string]error
}

func NewRegistry(settings Settings, factories ...domain.AdapterFactory) *Registry {
	r := &Registry{
		ready:  map[string]domain.PaymentAdapter{},
		broken: map[string]error{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		name := normalize(factory.Provider())
		if name == "" {
			continue
		}
		adapter, err := factory.NewAdapter(domain.AdapterConfig{Provider: name, Config: settings[name]})
		if err != nil {
			r.broken[name] = err
			continue
		}
		r.ready[name] = adapter
	}
	return r
}

// Adapter returns the provider's adapter. Unknown providers report
// ErrProviderNotFound; known but unconfigured ones report the build error.
func (r *Registry) Adapter(provider string) (domain.PaymentAdapter, error) {
	if r == nil {
		return nil, domain.ErrProviderNotFound
	}
	name := normalize(provider)
	if adapter, ok := r.ready[name]; ok {
		return adapter, nil
	}
	if err, ok := r.broken[name]; ok {
		return nil, err
	}
	return nil, domain.ErrProviderNotFound
}

// Providers lists the gateways that can accept webhooks.
func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.ready))
	for name := range r.ready {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
