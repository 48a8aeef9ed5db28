package vector

import (
	"context"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
}

// PgxIndex implements Index on PostgreSQL with the pgvector extension.
// Embeddings live in the chunk_embeddings table alongside the tenant and
// document columns used for filtering and cleanup.
type PgxIndex struct {
	conn pgxIConn
}

// NewPgxIndex creates an Index backed by the given connection or pool.
func NewPgxIndex(conn pgxIConn) *PgxIndex {
	return &PgxIndex{conn: conn}
}

// Upsert writes the points, replacing any existing embedding per chunk.
func (s *PgxIndex) Upsert(ctx context.Context, points []Point) error {
	for _, p := range points {
		_, err := s.conn.Exec(ctx, `
			INSERT INTO chunk_embeddings (chunk_id, document_id, tenant_id, embedding)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (chunk_id)
			DO UPDATE SET embedding = EXCLUDED.embedding
		`, p.ChunkID, p.DocumentID, p.TenantID, pgvector.NewVector(p.Embedding))
		if err != nil {
			return fmt.Errorf("failed to upsert embedding for chunk %s: %w", p.ChunkID, err)
		}
	}
	return nil
}

// Search returns the limit nearest chunks for the tenant, scored by
// cosine similarity.
func (s *PgxIndex) Search(ctx context.Context, embedding []float32, tenantID string, limit int) ([]Match, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT chunk_id, 1 - (embedding <=> $1) AS score
		FROM chunk_embeddings
		WHERE tenant_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, pgvector.NewVector(embedding), tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// DeleteByDocument removes every vector stored for the document.
func (s *PgxIndex) DeleteByDocument(ctx context.Context, documentID, tenantID string) error {
	_, err := s.conn.Exec(ctx, `
		DELETE FROM chunk_embeddings
		WHERE document_id = $1 AND tenant_id = $2
	`, documentID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to delete embeddings for document %s: %w", documentID, err)
	}
	return nil
}
