package graph

import (
	"context"
	"fmt"

	"github.com/loomhq/loom/pkg/common"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Writer performs idempotent upserts of extraction results into the
// graph store. Entities merge on (tenant_id, name), relationships on
// (source, target, type); a MENTIONS provenance edge from the
// originating chunk to each entity is created alongside the merge.
type Writer struct {
	port Port
}

// NewWriter builds a Writer on the given graph port.
func NewWriter(port Port) *Writer {
	return &Writer{port: port}
}

// SyncDocument mirrors the document and its chunks into the graph so
// later writes have merge anchors for provenance edges.
func (w *Writer) SyncDocument(ctx context.Context, doc common.Document, chunks []common.Chunk) error {
	chunkParams := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		chunkParams = append(chunkParams, map[string]any{
			"id":    c.ID,
			"index": c.Index,
		})
	}

	_, err := w.port.ExecuteWrite(ctx, QueryMergeDocumentGraph, map[string]any{
		"document_id": doc.ID,
		"tenant_id":   doc.TenantID,
		"filename":    doc.Filename,
		"chunks":      chunkParams,
	})
	if err != nil {
		return fmt.Errorf("failed to sync document %s into graph: %w", doc.ID, err)
	}
	return nil
}

// PurgeDocument removes the document's graph footprint, including chunk
// nodes and entities left without any remaining mention. Used before a
// rerun rebuilds the document from scratch; entities mentioned by other
// documents survive.
func (w *Writer) PurgeDocument(ctx context.Context, documentID, tenantID string) error {
	_, err := w.port.ExecuteWrite(ctx, QueryDeleteDocumentGraph, map[string]any{
		"document_id": documentID,
		"tenant_id":   tenantID,
	})
	if err != nil {
		return fmt.Errorf("failed to purge document %s from graph: %w", documentID, err)
	}
	return nil
}

// WriteExtraction upserts one chunk's extraction result and returns the
// graph ids of the touched entities. The result is deduplicated before
// writing, so gleaning's concatenated duplicates collapse here.
func (w *Writer) WriteExtraction(
	ctx context.Context,
	tenantID string,
	chunkID string,
	result common.ExtractionResult,
) ([]string, error) {
	entities := dedupEntities(result.Entities)
	if len(entities) == 0 {
		return nil, nil
	}

	entityParams := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to generate entity id: %w", err)
		}
		entityParams = append(entityParams, map[string]any{
			"id":          id,
			"name":        e.Name,
			"type":        e.Type,
			"description": e.Description,
			"importance":  e.Importance,
		})
	}

	rows, err := w.port.ExecuteWrite(ctx, QueryMergeEntities, map[string]any{
		"chunk_id":  chunkID,
		"tenant_id": tenantID,
		"entities":  entityParams,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to merge entities for chunk %s: %w", chunkID, err)
	}

	entityIDs := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"].(string); ok {
			entityIDs = append(entityIDs, id)
		}
	}

	relationships := dedupRelationships(result.Relationships)
	if len(relationships) > 0 {
		relParams := make([]map[string]any, 0, len(relationships))
		for _, r := range relationships {
			relParams = append(relParams, map[string]any{
				"source":      r.Source,
				"target":      r.Target,
				"type":        r.Type,
				"description": r.Description,
				"weight":      r.Weight,
			})
		}

		_, err := w.port.ExecuteWrite(ctx, QueryMergeRelationships, map[string]any{
			"tenant_id":     tenantID,
			"relationships": relParams,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to merge relationships for chunk %s: %w", chunkID, err)
		}
	}

	return entityIDs, nil
}

// dedupEntities keeps the first occurrence per normalized name, merging
// later descriptions into it.
func dedupEntities(entities []common.Entity) []common.Entity {
	seen := make(map[string]int, len(entities))
	out := make([]common.Entity, 0, len(entities))
	for _, e := range entities {
		if idx, ok := seen[e.Name]; ok {
			if e.Description != "" && out[idx].Description != e.Description {
				if out[idx].Description == "" {
					out[idx].Description = e.Description
				} else {
					out[idx].Description += "\n" + e.Description
				}
			}
			if e.Importance > out[idx].Importance {
				out[idx].Importance = e.Importance
			}
			continue
		}
		seen[e.Name] = len(out)
		out = append(out, e)
	}
	return out
}

// dedupRelationships keeps one relationship per (source, target, type),
// taking the maximum weight across duplicates.
func dedupRelationships(rels []common.Relationship) []common.Relationship {
	type relKey struct {
		source, target, relType string
	}
	seen := make(map[relKey]int, len(rels))
	out := make([]common.Relationship, 0, len(rels))
	for _, r := range rels {
		key := relKey{r.Source, r.Target, r.Type}
		if idx, ok := seen[key]; ok {
			if r.Weight > out[idx].Weight {
				out[idx].Weight = r.Weight
			}
			continue
		}
		seen[key] = len(out)
		out = append(out, r)
	}
	return out
}
