package providers

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Registry manages available providers. Safe for concurrent use: sessions
// read it on every turn while a Manager may register a new provider lazily
// the first time an agent referencing it is resolved.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// ProviderFactory is a function that creates a provider from a spec
type ProviderFactory func(spec ProviderSpec) (Provider, error)

var providerFactories = make(map[string]ProviderFactory)

// RegisterProviderFactory registers a factory function for a provider type
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	providerFactories[providerType] = factory
}

// NewRegistry creates a new provider registry
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider to the registry
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID
func (r *Registry) Get(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, exists := r.providers[id]
	return provider, exists
}

// List returns all registered provider IDs
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	return ids
}

// Close closes all registered providers and cleans up their resources
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, provider := range r.providers {
		if err := provider.Close(); err != nil {
			return err
		}
	}
	return nil
}

// ProviderSpec holds the configuration needed to create a provider instance
type ProviderSpec struct {
	ID               string
	Type             string
	Model            string
	BaseURL          string
	Defaults         ProviderDefaults
	IncludeRawOutput bool
	AdditionalConfig map[string]interface{} // Flexible key-value pairs for provider-specific configuration
	ConfigSchema     string                 // Optional JSON schema AdditionalConfig must satisfy

	// Credential, when set, routes the provider through a hyperscaler
	// platform (AWS Bedrock, GCP Vertex, Azure AI) instead of the vendor's
	// direct API with an environment-variable key. Platform/PlatformConfig
	// describe which platform and its region/project/endpoint.
	Credential     Credential
	Platform       string
	PlatformConfig *PlatformConfig
}

// validateAdditionalConfig checks spec.AdditionalConfig against spec.ConfigSchema,
// when one is set. A spec with no schema is always valid.
func validateAdditionalConfig(spec ProviderSpec) error {
	if spec.ConfigSchema == "" {
		return nil
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(spec.ConfigSchema))
	if err != nil {
		return fmt.Errorf("invalid config schema for provider %s: %w", spec.ID, err)
	}

	raw, err := json.Marshal(spec.AdditionalConfig)
	if err != nil {
		return fmt.Errorf("cannot marshal additional config for provider %s: %w", spec.ID, err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("config validation error for provider %s: %w", spec.ID, err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return fmt.Errorf("additional config for provider %s failed validation: %v", spec.ID, errs)
	}
	return nil
}

// CreateProviderFromSpec creates a provider implementation from a spec.
// Returns an error if the provider type is unsupported.
func CreateProviderFromSpec(spec ProviderSpec) (Provider, error) {
	// Use default base URLs if not specified
	baseURL := spec.BaseURL
	if baseURL == "" {
		switch spec.Type {
		case "openai":
			baseURL = "https://api.openai.com/v1"
		case "gemini":
			baseURL = "https://generativelanguage.googleapis.com"
		case "claude":
			baseURL = "https://api.anthropic.com"
		case "mock":
			// No base URL needed for mock provider
		}
	}

	// Update spec with default baseURL
	spec.BaseURL = baseURL

	if err := validateAdditionalConfig(spec); err != nil {
		return nil, err
	}

	// Look up the factory for this provider type
	factory, exists := providerFactories[spec.Type]
	if !exists {
		return nil, &UnsupportedProviderError{ProviderType: spec.Type}
	}

	return factory(spec)
}

// UnsupportedProviderError is returned when a provider type is not recognized
type UnsupportedProviderError struct {
	ProviderType string
}

func (e *UnsupportedProviderError) Error() string {
	return "unsupported provider type: " + e.ProviderType
}
