package retrieval

import "time"

// VectorStore is the interface for vector storage and similarity search
// backends. Search is always scoped to a single namespace: one namespace per
// document, keyed by the document ID, so a query never sees another
// document's chunks. The current implementation uses SQLite with brute-force
// cosine similarity; an ANN-capable backend can replace it behind this
// interface without touching callers.
type VectorStore interface {
	// Insert adds records to the given namespace.
	Insert(namespace string, records []Record) error

	// Search returns the top-K records of the namespace most similar to the
	// query vector, sorted by descending score. Ties are broken by record ID
	// so identical inputs always produce the same ordering.
	Search(namespace string, vector []float32, topK int) ([]ScoredRecord, error)

	// DeleteNamespace removes every record in the namespace. Idempotent.
	DeleteNamespace(namespace string) error

	// Count returns the number of records in the namespace.
	Count(namespace string) (int, error)
}

// Record represents one indexed chunk of a document.
type Record struct {
	ID         string
	DocumentID string
	Page       int
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
