// Package ingest owns the document lifecycle: registration with
// content-hash deduplication, the processing state machine, and
// cross-store deletion.
package ingest

import (
	"context"
	"time"

	"github.com/loomhq/loom/pkg/common"
)

// ObjectStore is the blob storage port.
type ObjectStore interface {
	Upload(ctx context.Context, path string, content []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	// DeletePrefix removes every blob under the prefix. Used when the
	// exact storage path is no longer known.
	DeletePrefix(ctx context.Context, prefix string) error
}

// TaskDispatcher enqueues background jobs with at-least-once delivery.
// Retry and backoff policy live in the dispatch layer, not here.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, taskName string, payload any) error
}

// StateChangeEvent describes one document state transition.
type StateChangeEvent struct {
	DocumentID   string                `json:"document_id"`
	TenantID     string                `json:"tenant_id"`
	From         common.DocumentStatus `json:"from"`
	To           common.DocumentStatus `json:"to"`
	ErrorMessage string                `json:"error_message,omitempty"`
	At           time.Time             `json:"at"`
}

// StatePublisher makes state transitions observable to external
// consumers. Implementations must be best-effort and non-blocking; the
// pipeline never waits on delivery.
type StatePublisher interface {
	Publish(event StateChangeEvent)
}

// DocumentStore is the relational repository port for documents and
// chunks.
type DocumentStore interface {
	Insert(ctx context.Context, doc *common.Document) error
	GetByID(ctx context.Context, id, tenantID string) (*common.Document, error)
	// GetByIDAnyTenant bypasses the tenant filter for super admins.
	GetByIDAnyTenant(ctx context.Context, id string) (*common.Document, error)
	FindByHash(ctx context.Context, tenantID, contentHash string) (*common.Document, error)
	UpdateStatus(ctx context.Context, id string, status common.DocumentStatus, errorMessage string) error
	UpdateDomain(ctx context.Context, id, domain string) error
	InsertChunks(ctx context.Context, chunks []common.Chunk) error
	// DeleteChunks removes every chunk of the document, for reruns that
	// re-chunk from scratch.
	DeleteChunks(ctx context.Context, documentID string) error
	MarkChunksEmbedded(ctx context.Context, chunkIDs []string) error
	ChunksByDocument(ctx context.Context, documentID string) ([]common.Chunk, error)
	// Delete removes the document row; chunk rows cascade with it.
	Delete(ctx context.Context, id string) error
	// StuckDocuments returns non-terminal documents untouched for longer
	// than the threshold, for the startup recovery sweep.
	StuckDocuments(ctx context.Context, olderThan time.Duration) ([]common.Document, error)
}

// TextExtractor converts stored document bytes into plain text.
type TextExtractor interface {
	Extract(content []byte, contentType string) (string, error)
}

// Chunker splits document text into ordered chunks.
type Chunker interface {
	Split(documentID, text string) ([]common.Chunk, error)
}
