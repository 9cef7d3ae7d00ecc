package llm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/visably/optimo/internal/ports"
)

// ProviderFactory constructs a provider client from a validated config.
type ProviderFactory func(config ClientConfig) (ports.LLMClient, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]ProviderFactory)
)

// RegisterProviderFactory registers a factory under a provider name.
// Provider files call this from init; a duplicate name panics to surface
// wiring mistakes at startup.
func RegisterProviderFactory(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("llm: provider %q registered twice", name))
	}
	registry[name] = factory
}

// RegisteredProviders returns the registered provider names, sorted.
func RegisteredProviders() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewClient builds a client for the configured provider, wrapped with the
// retry policy. Returns an error for unknown providers or invalid
// configuration.
func NewClient(config ClientConfig) (ports.LLMClient, error) {
	registryMu.RLock()
	factory, ok := registry[config.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown llm provider %q, registered: %v",
			config.Provider, RegisteredProviders())
	}

	client, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", config.Provider, err)
	}

	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxRetries < 0 {
		return client, nil
	}
	return NewRetryClient(client, maxRetries), nil
}
