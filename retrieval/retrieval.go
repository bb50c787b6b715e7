// Package retrieval resolves a query string plus an agent's retrieval
// configuration into a bounded set of scored text contexts for prompt
// construction. The retrieval implementation itself is opaque: this package
// only defines the capability boundary and a default in-process backend.
package retrieval

import (
	"context"
	"time"
)

// DefaultTimeout is the bounded time C7 allows retrieval to take before it
// proceeds with the best-so-far result (or none).
const DefaultTimeout = 300 * time.Millisecond

// DefaultK is the default number of contexts returned when a retrieval
// configuration does not override it.
const DefaultK = 4

// Context is one retrieved passage plus its relevance score.
type Context struct {
	Text  string
	Score float64
}

// Config is the agent-reference-scoped retrieval configuration: which
// retriever to use, which corpus/conversation to scope the search to, and
// how many contexts to request.
type Config struct {
	ProviderID     string
	ConversationID string
	K              int
	Timeout        time.Duration
}

// Retriever returns up to k textual contexts relevant to query. Retrievers
// must respect ctx cancellation: C7 always calls Retrieve under a bounded
// context and treats a timeout as "zero contexts", never as a turn failure.
type Retriever interface {
	ID() string
	Retrieve(ctx context.Context, query string, k int) ([]Context, error)
	Close() error
}

// Retrieve resolves cfg against registry and runs the retriever under
// cfg's bounded timeout (or DefaultTimeout). Retrieval errors and timeouts
// never propagate: both cases yield (nil, false) so the caller proceeds
// with zero contexts and can flag the turn accordingly.
func Retrieve(ctx context.Context, registry *Registry, cfg Config, query string) ([]Context, bool) {
	if cfg.ProviderID == "" {
		return nil, false
	}
	retriever, ok := registry.Get(cfg.ProviderID)
	if !ok {
		return nil, false
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	k := cfg.K
	if k <= 0 {
		k = DefaultK
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results, err := retriever.Retrieve(rctx, query, k)
	if err != nil || len(results) == 0 {
		return nil, false
	}
	return results, true
}
