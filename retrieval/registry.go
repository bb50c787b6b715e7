package retrieval

// Registry looks up Retriever implementations by provider identifier, the
// same string-identifier dispatch pattern used for STT, TTS, and LLM
// providers.
type Registry struct {
	retrievers map[string]Retriever
}

// NewRegistry creates an empty retrieval registry.
func NewRegistry() *Registry {
	return &Registry{retrievers: make(map[string]Retriever)}
}

// Register adds a retriever to the registry, keyed by its ID.
func (r *Registry) Register(retriever Retriever) {
	r.retrievers[retriever.ID()] = retriever
}

// Get retrieves a retriever by ID.
func (r *Registry) Get(id string) (Retriever, bool) {
	retriever, ok := r.retrievers[id]
	return retriever, ok
}

// Close closes every registered retriever and cleans up its resources.
func (r *Registry) Close() error {
	for _, retriever := range r.retrievers {
		if err := retriever.Close(); err != nil {
			return err
		}
	}
	return nil
}
