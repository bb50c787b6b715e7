package providers

import (
	"context"
	"net/http"
	"time"
)

// Credential applies authentication to an outbound provider HTTP request.
// Satisfied structurally by credentials.APIKeyCredential, AWSCredential,
// AzureCredential, and GCPCredential without this package importing
// credentials directly, so a vendor LLM adapter (claude, gemini) can accept
// any of them through the same narrow interface.
type Credential interface {
	Apply(ctx context.Context, req *http.Request) error
	Type() string
}

// PlatformConfig describes the hyperscaler hosting layer a provider is
// reached through (AWS Bedrock, GCP Vertex, Azure AI), as opposed to the
// provider type itself, which determines request/response shape.
type PlatformConfig struct {
	// Type is the platform identifier: "bedrock", "vertex", or "azure".
	Type             string
	Region           string
	Project          string
	Endpoint         string
	AdditionalConfig map[string]interface{}
}

// apiKeyHolder is satisfied by credentials.APIKeyCredential; extracting the
// raw key lets legacy code paths that still set an X-API-Key/Authorization
// header directly keep working for credentials that are really just an API
// key wrapped in the Credential interface.
type apiKeyHolder interface {
	APIKey() string
}

// NewBaseProviderWithCredential builds a BaseProvider for a provider hosted
// behind a pluggable Credential (SigV4, OAuth2, Azure AD, or a plain API
// key) instead of an environment-variable API key. The returned string is
// the raw API key when cred is API-key-shaped, and empty for SigV4/OAuth2
// credentials that sign the request themselves in Credential.Apply.
func NewBaseProviderWithCredential(id string, includeRawOutput bool, timeout time.Duration, cred Credential) (BaseProvider, string) {
	client := &http.Client{Timeout: timeout}

	var apiKey string
	if holder, ok := cred.(apiKeyHolder); ok {
		apiKey = holder.APIKey()
	}

	return NewBaseProvider(id, includeRawOutput, client), apiKey
}

// CredentialFactory builds a ProviderFactory that dispatches to withCredential
// when spec.Credential is set (a vendor adapter reached through a cloud
// platform's SigV4/OAuth2/AD signing) and to withAPIKey otherwise (the
// common case: a direct vendor API reached with an environment-variable
// key).
func CredentialFactory(withCredential, withAPIKey ProviderFactory) ProviderFactory {
	return func(spec ProviderSpec) (Provider, error) {
		if spec.Credential != nil {
			return withCredential(spec)
		}
		return withAPIKey(spec)
	}
}
