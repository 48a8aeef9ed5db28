package graph

import (
	"context"
	"testing"

	"github.com/loomhq/loom/pkg/common"
)

func sampleResult() common.ExtractionResult {
	return common.ExtractionResult{
		Entities: []common.Entity{
			common.NewEntity("Neo4j", "TECHNOLOGY", "A graph database.", 0.9),
			common.NewEntity("Python", "TECHNOLOGY", "A programming language.", 0.8),
		},
		Relationships: []common.Relationship{
			common.NewRelationship("Python", "Neo4j", "CONNECTS_TO", "via driver", 0.7),
		},
	}
}

func TestWriteExtractionIsIdempotent(t *testing.T) {
	port := newFakePort()
	w := NewWriter(port)
	ctx := context.Background()

	first, err := w.WriteExtraction(ctx, "tenant1", "chunk1", sampleResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 entity ids, got %d", len(first))
	}

	entitiesAfterOne := len(port.entities)
	relsAfterOne := len(port.relationships)

	second, err := w.WriteExtraction(ctx, "tenant1", "chunk1", sampleResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(port.entities) != entitiesAfterOne {
		t.Fatalf("entity count changed on rewrite: %d -> %d", entitiesAfterOne, len(port.entities))
	}
	if len(port.relationships) != relsAfterOne {
		t.Fatalf("relationship count changed on rewrite: %d -> %d", relsAfterOne, len(port.relationships))
	}
	// Same merge keys resolve to the same graph ids.
	if len(second) != 2 || second[0] != first[0] {
		t.Fatalf("expected stable entity ids, got %v then %v", first, second)
	}
}

func TestWriteExtractionDedupsWithinResult(t *testing.T) {
	result := common.ExtractionResult{
		Entities: []common.Entity{
			common.NewEntity("Neo4j", "TECHNOLOGY", "A graph database.", 0.9),
			common.NewEntity("neo4j", "TECHNOLOGY", "Stores nodes and edges.", 0.5),
		},
		Relationships: []common.Relationship{
			common.NewRelationship("Neo4j", "Neo4j", "RELATED", "", 0.1),
			common.NewRelationship("Neo4j", "Neo4j", "RELATED", "", 0.9),
		},
	}

	port := newFakePort()
	w := NewWriter(port)

	ids, err := w.WriteExtraction(context.Background(), "tenant1", "chunk1", result)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 entity id after dedup, got %d", len(ids))
	}
	if len(port.entities) != 1 {
		t.Fatalf("expected 1 entity node, got %d", len(port.entities))
	}
	if len(port.relationships) != 1 {
		t.Fatalf("expected 1 relationship edge, got %d", len(port.relationships))
	}
}

func TestWriteExtractionCreatesProvenance(t *testing.T) {
	port := newFakePort()
	w := NewWriter(port)

	ids, err := w.WriteExtraction(context.Background(), "tenant1", "chunk1", sampleResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range ids {
		if !port.mentions["chunk1"][id] {
			t.Fatalf("missing MENTIONS edge from chunk1 to %s", id)
		}
	}
}

func TestWriteExtractionSkipsEmptyResult(t *testing.T) {
	port := newFakePort()
	w := NewWriter(port)

	ids, err := w.WriteExtraction(context.Background(), "tenant1", "chunk1", common.ExtractionResult{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 || len(port.writeLog) != 0 {
		t.Fatalf("expected no writes for empty result, got %v", port.writeLog)
	}
}

func TestTenantsDoNotShareEntities(t *testing.T) {
	port := newFakePort()
	w := NewWriter(port)
	ctx := context.Background()

	if _, err := w.WriteExtraction(ctx, "tenant1", "chunk1", sampleResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := w.WriteExtraction(ctx, "tenant2", "chunk2", sampleResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(port.entities) != 4 {
		t.Fatalf("expected 4 entity nodes across tenants, got %d", len(port.entities))
	}
}
