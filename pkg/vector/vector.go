// Package vector defines the vector index port used for chunk embeddings
// and provides a pgvector-backed implementation.
package vector

import "context"

// Point is one embedded chunk stored in the index.
type Point struct {
	ChunkID    string
	DocumentID string
	TenantID   string
	Embedding  []float32
}

// Match is a nearest-neighbor search result. Score is cosine similarity
// in [0, 1], higher is closer.
type Match struct {
	ChunkID string
	Score   float64
}

// Index is the vector index port. Implementations must scope every
// operation to the given tenant.
type Index interface {
	Upsert(ctx context.Context, points []Point) error
	Search(ctx context.Context, embedding []float32, tenantID string, limit int) ([]Match, error)
	DeleteByDocument(ctx context.Context, documentID, tenantID string) error
}
