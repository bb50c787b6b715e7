package retrieval

import (
	"context"

	"github.com/AltairaLabs/PromptKit/runtime/statestore"
)

// InMemoryRetriever is the default/stub retrieval backend: brute-force
// cosine similarity over an embedding index scoped to one conversation. It
// wraps statestore.MessageIndex rather than reimplementing vector search.
type InMemoryRetriever struct {
	id             string
	index          statestore.MessageIndex
	conversationID string
}

// NewInMemoryRetriever builds a retriever over an existing message index,
// scoped to one conversation.
func NewInMemoryRetriever(id string, index statestore.MessageIndex, conversationID string) *InMemoryRetriever {
	return &InMemoryRetriever{id: id, index: index, conversationID: conversationID}
}

// ID returns the provider identifier.
func (r *InMemoryRetriever) ID() string { return r.id }

// Retrieve runs a cosine-similarity search against the conversation's
// message index and returns the results as scored contexts.
func (r *InMemoryRetriever) Retrieve(ctx context.Context, query string, k int) ([]Context, error) {
	results, err := r.index.Search(ctx, r.conversationID, query, k)
	if err != nil {
		return nil, err
	}
	contexts := make([]Context, len(results))
	for i, res := range results {
		contexts[i] = Context{Text: res.Message.Content, Score: res.Score}
	}
	return contexts, nil
}

// Close is a no-op: the underlying index's lifetime is owned by whoever
// constructed it.
func (r *InMemoryRetriever) Close() error { return nil }
