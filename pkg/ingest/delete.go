package ingest

import (
	"context"
	"fmt"
	"path"

	"github.com/loomhq/loom/pkg/graph"
	"github.com/loomhq/loom/pkg/logger"
	"github.com/loomhq/loom/pkg/vector"
)

// Deleter removes a document's footprint from every store. The steps are
// failure-isolated: graph, vector, and blob cleanup failures are logged
// as warnings and never block later steps; the relational row is deleted
// last so a crashed deletion stays discoverable and re-runnable.
type Deleter struct {
	store   DocumentStore
	graph   graph.Port
	index   vector.Index
	objects ObjectStore
}

// NewDeleter wires a Deleter from the four store ports.
func NewDeleter(store DocumentStore, graphPort graph.Port, index vector.Index, objects ObjectStore) *Deleter {
	return &Deleter{
		store:   store,
		graph:   graphPort,
		index:   index,
		objects: objects,
	}
}

// DeleteResult reports a completed deletion.
type DeleteResult struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

// DeleteDocument removes the document from the graph store, the vector
// index, object storage, and finally the relational store. It is safe to
// re-run on a partially deleted document: a missing relational record
// only skips the steps that need it.
func (d *Deleter) DeleteDocument(ctx context.Context, documentID, tenantID string, isSuperAdmin bool) (DeleteResult, error) {
	var storagePath string

	doc, err := d.store.GetByID(ctx, documentID, tenantID)
	if isSuperAdmin && doc == nil && err == nil {
		doc, err = d.store.GetByIDAnyTenant(ctx, documentID)
	}
	if err != nil {
		logger.Warn("[Delete] relational lookup failed, proceeding best-effort",
			"document_id", documentID, "err", err)
	}
	if doc != nil {
		tenantID = doc.TenantID
		storagePath = doc.StoragePath
	}

	// Graph cleanup: document, chunks, and entities left unmentioned.
	_, err = d.graph.ExecuteWrite(ctx, graph.QueryDeleteDocumentGraph, map[string]any{
		"document_id": documentID,
		"tenant_id":   tenantID,
	})
	if err != nil {
		logger.Warn("[Delete] graph cleanup failed",
			"document_id", documentID, "err", err)
	}

	if err := d.index.DeleteByDocument(ctx, documentID, tenantID); err != nil {
		logger.Warn("[Delete] vector cleanup failed",
			"document_id", documentID, "err", err)
	}

	if storagePath != "" {
		if err := d.objects.Delete(ctx, storagePath); err != nil {
			logger.Warn("[Delete] blob cleanup failed",
				"document_id", documentID, "path", storagePath, "err", err)
		}
	} else {
		// Without the record the exact path is gone, but blobs live
		// under <tenant>/<document id>/.
		prefix := path.Join(tenantID, documentID)
		if err := d.objects.DeletePrefix(ctx, prefix); err != nil {
			logger.Warn("[Delete] blob prefix cleanup failed",
				"document_id", documentID, "prefix", prefix, "err", err)
		}
	}

	// Relational last. Only this step decides overall success.
	if doc != nil {
		if err := d.store.Delete(ctx, documentID); err != nil {
			return DeleteResult{}, fmt.Errorf("failed to delete document record: %w", err)
		}
	}

	logger.Info("[Delete] document removed", "document_id", documentID, "tenant_id", tenantID)
	return DeleteResult{DocumentID: documentID, Status: "deleted"}, nil
}
