package retrieval

import (
	"context"
	"fmt"
)

// Passage is a retrieved chunk of a document with its similarity score.
// Passages are transient per request; the vector store is the system of record.
type Passage struct {
	ID         string
	DocumentID string
	Page       int
	Text       string
	Score      float32
}

// Retriever combines query embedding and namespace-scoped vector search.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
}

// NewRetriever creates a Retriever backed by the given Embedder and VectorStore.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Search embeds the query and returns the top-K most similar passages of the
// document, sorted by descending score. Failures propagate; no retry happens
// at this layer.
func (r *Retriever) Search(ctx context.Context, documentID, query string, topK int) ([]Passage, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(documentID, vec, topK)
	if err != nil {
		return nil, err
	}

	passages := make([]Passage, len(scored))
	for i, s := range scored {
		passages[i] = Passage{
			ID:         s.ID,
			DocumentID: s.DocumentID,
			Page:       s.Page,
			Text:       s.TextChunk,
			Score:      s.Score,
		}
	}
	return passages, nil
}
