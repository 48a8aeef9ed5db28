package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loomhq/loom/pkg/common"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgxv5.Row
	CopyFrom(ctx context.Context, tableName pgxv5.Identifier, columnNames []string, rowSrc pgxv5.CopyFromSource) (int64, error)
}

// DocumentStore persists documents and chunks in PostgreSQL. Lookups that
// find nothing return (nil, nil) so callers can distinguish absence from
// connection problems.
type DocumentStore struct {
	conn pgxIConn
}

// NewDocumentStore creates a DocumentStore on an existing connection or pool.
func NewDocumentStore(conn pgxIConn) *DocumentStore {
	return &DocumentStore{conn: conn}
}

const documentColumns = `id, tenant_id, filename, content_hash, content_type,
	storage_path, status, domain, source_type, error_message, created_at, updated_at`

func scanDocument(row pgxv5.Row) (*common.Document, error) {
	var doc common.Document
	err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.Filename, &doc.ContentHash, &doc.ContentType,
		&doc.StoragePath, &doc.Status, &doc.Domain, &doc.SourceType,
		&doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *DocumentStore) Insert(ctx context.Context, doc *common.Document) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		doc.ID, doc.TenantID, doc.Filename, doc.ContentHash, doc.ContentType,
		doc.StoragePath, doc.Status, doc.Domain, doc.SourceType,
		doc.ErrorMessage, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document %s: %w", doc.ID, err)
	}
	return nil
}

func (s *DocumentStore) GetByID(ctx context.Context, id, tenantID string) (*common.Document, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	return scanDocument(row)
}

func (s *DocumentStore) GetByIDAnyTenant(ctx context.Context, id string) (*common.Document, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE id = $1`,
		id,
	)
	return scanDocument(row)
}

func (s *DocumentStore) FindByHash(ctx context.Context, tenantID, contentHash string) (*common.Document, error) {
	row := s.conn.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE tenant_id = $1 AND content_hash = $2
		ORDER BY created_at
		LIMIT 1`,
		tenantID, contentHash,
	)
	return scanDocument(row)
}

func (s *DocumentStore) UpdateStatus(ctx context.Context, id string, status common.DocumentStatus, errorMessage string) error {
	tag, err := s.conn.Exec(ctx, `
		UPDATE documents
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`,
		id, status, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of document %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("document %s not found", id)
	}
	return nil
}

func (s *DocumentStore) UpdateDomain(ctx context.Context, id, domain string) error {
	_, err := s.conn.Exec(ctx, `
		UPDATE documents
		SET domain = $2, updated_at = now()
		WHERE id = $1`,
		id, domain,
	)
	if err != nil {
		return fmt.Errorf("failed to update domain of document %s: %w", id, err)
	}
	return nil
}

func (s *DocumentStore) InsertChunks(ctx context.Context, chunks []common.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(chunks))
	for _, c := range chunks {
		status := c.EmbeddingStatus
		if status == "" {
			status = "pending"
		}
		rows = append(rows, []any{c.ID, c.DocumentID, c.Index, c.Content, c.TokenCount, status})
	}
	_, err := s.conn.CopyFrom(
		ctx,
		pgxv5.Identifier{"chunks"},
		[]string{"id", "document_id", "chunk_index", "content", "token_count", "embedding_status"},
		pgxv5.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to insert %d chunks: %w", len(chunks), err)
	}
	return nil
}

// DeleteChunks removes every chunk of the document; chunk embeddings
// cascade with them.
func (s *DocumentStore) DeleteChunks(ctx context.Context, documentID string) error {
	_, err := s.conn.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks of document %s: %w", documentID, err)
	}
	return nil
}

// MarkChunksEmbedded records that every listed chunk has its embedding
// stored in the vector index.
func (s *DocumentStore) MarkChunksEmbedded(ctx context.Context, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	_, err := s.conn.Exec(ctx, `
		UPDATE chunks
		SET embedding_status = 'embedded'
		WHERE id = ANY($1)`,
		chunkIDs,
	)
	if err != nil {
		return fmt.Errorf("failed to mark %d chunks embedded: %w", len(chunkIDs), err)
	}
	return nil
}

func (s *DocumentStore) ChunksByDocument(ctx context.Context, documentID string) ([]common.Chunk, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, document_id, chunk_index, content, token_count, embedding_status
		FROM chunks
		WHERE document_id = $1
		ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks of document %s: %w", documentID, err)
	}
	defer rows.Close()

	var chunks []common.Chunk
	for rows.Next() {
		var c common.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Index, &c.Content, &c.TokenCount, &c.EmbeddingStatus); err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Delete removes the document row; chunks and chunk embeddings go with it
// through ON DELETE CASCADE.
func (s *DocumentStore) Delete(ctx context.Context, id string) error {
	_, err := s.conn.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return nil
}

// StuckDocuments returns non-terminal documents that have not moved for
// longer than olderThan, for the startup recovery sweep.
func (s *DocumentStore) StuckDocuments(ctx context.Context, olderThan time.Duration) ([]common.Document, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE status NOT IN ('READY', 'FAILED')
		  AND updated_at < now() - make_interval(secs => $1)
		ORDER BY updated_at`,
		olderThan.Seconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck documents: %w", err)
	}
	defer rows.Close()

	var docs []common.Document
	for rows.Next() {
		var doc common.Document
		err := rows.Scan(
			&doc.ID, &doc.TenantID, &doc.Filename, &doc.ContentHash, &doc.ContentType,
			&doc.StoragePath, &doc.Status, &doc.Domain, &doc.SourceType,
			&doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
