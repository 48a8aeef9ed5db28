package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/loomhq/loom/pkg/vector"
)

// Enricher computes derived edges: chunk-to-chunk similarity from the
// vector index and entity co-occurrence from shared mentions.
type Enricher struct {
	port  Port
	index vector.Index
}

// NewEnricher builds an Enricher on the given graph port and vector index.
func NewEnricher(port Port, index vector.Index) *Enricher {
	return &Enricher{port: port, index: index}
}

// CreateSimilarityEdges searches the tenant's vector index for the
// chunk's nearest neighbors and merges a directed SIMILAR_TO edge for
// every result scoring at or above the threshold. The chunk itself never
// receives a self-edge. Returns the number of edges written.
func (e *Enricher) CreateSimilarityEdges(
	ctx context.Context,
	chunkID string,
	embedding []float32,
	tenantID string,
	threshold float64,
	limit int,
) (int, error) {
	// limit+1 because the search can return the chunk itself.
	matches, err := e.index.Search(ctx, embedding, tenantID, limit+1)
	if err != nil {
		return 0, fmt.Errorf("similarity search for chunk %s failed: %w", chunkID, err)
	}

	edges := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		if m.ChunkID == chunkID || m.Score < threshold {
			continue
		}
		if len(edges) >= limit {
			break
		}
		edges = append(edges, map[string]any{
			"source": chunkID,
			"target": m.ChunkID,
			"score":  m.Score,
		})
	}
	if len(edges) == 0 {
		return 0, nil
	}

	_, err = e.port.ExecuteWrite(ctx, QueryMergeSimilarityEdges, map[string]any{
		"edges": edges,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to merge similarity edges for chunk %s: %w", chunkID, err)
	}
	return len(edges), nil
}

// ComputeCoOccurrence counts, for every unordered entity pair, the chunks
// mentioning both, and merges one CO_OCCURS edge per pair whose count
// reaches minWeight. Pair endpoints are ordered lexicographically so the
// undirected relation is always represented by exactly one edge.
func (e *Enricher) ComputeCoOccurrence(ctx context.Context, tenantID string, minWeight int) (int, error) {
	if minWeight < 1 {
		minWeight = 1
	}

	rows, err := e.port.ExecuteRead(ctx, QueryMentionPairs, map[string]any{
		"tenant_id": tenantID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to read mention pairs: %w", err)
	}

	byChunk := make(map[string][]string)
	for _, row := range rows {
		chunkID, ok1 := row["chunk_id"].(string)
		entityID, ok2 := row["entity_id"].(string)
		if !ok1 || !ok2 {
			continue
		}
		byChunk[chunkID] = append(byChunk[chunkID], entityID)
	}

	type pairKey struct{ source, target string }
	counts := make(map[pairKey]int)
	for _, entities := range byChunk {
		sort.Strings(entities)
		for i := 0; i < len(entities); i++ {
			for j := i + 1; j < len(entities); j++ {
				if entities[i] == entities[j] {
					continue
				}
				counts[pairKey{entities[i], entities[j]}]++
			}
		}
	}

	pairs := make([]map[string]any, 0, len(counts))
	for key, weight := range counts {
		if weight < minWeight {
			continue
		}
		pairs = append(pairs, map[string]any{
			"source": key.source,
			"target": key.target,
			"weight": weight,
		})
	}
	if len(pairs) == 0 {
		return 0, nil
	}

	_, err = e.port.ExecuteWrite(ctx, QueryMergeCoOccurrence, map[string]any{
		"pairs": pairs,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to merge co-occurrence edges: %w", err)
	}
	return len(pairs), nil
}
