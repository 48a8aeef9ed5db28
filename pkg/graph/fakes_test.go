package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/loomhq/loom/pkg/ai"
	"github.com/loomhq/loom/pkg/vector"
)

// fakePort is an in-memory graph store that interprets the package's
// exported query constants with merge semantics, so write idempotence is
// observable as node and edge counts.
type fakePort struct {
	mu sync.Mutex

	entities      map[string]map[string]any // tenant|name -> properties
	relationships map[string]float64        // tenant|source|target|type -> weight
	mentions      map[string]map[string]bool
	simEdges      map[string]float64 // source|target -> score
	coEdges       map[string]int     // source|target -> weight
	members       map[string]bool    // entity ids attached to a community
	staleMarked   int

	readLog  []string
	writeLog []string
}

func newFakePort() *fakePort {
	return &fakePort{
		entities:      map[string]map[string]any{},
		relationships: map[string]float64{},
		mentions:      map[string]map[string]bool{},
		simEdges:      map[string]float64{},
		coEdges:       map[string]int{},
		members:       map[string]bool{},
	}
}

func (p *fakePort) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readLog = append(p.readLog, query)

	switch query {
	case QueryMentionPairs:
		rows := []map[string]any{}
		for chunkID, entityIDs := range p.mentions {
			for entityID := range entityIDs {
				rows = append(rows, map[string]any{
					"chunk_id":  chunkID,
					"entity_id": entityID,
				})
			}
		}
		return rows, nil

	case QueryOrphanEntities:
		tenantID := params["tenant_id"].(string)
		rows := []map[string]any{}
		for key, props := range p.entities {
			if !strings.HasPrefix(key, tenantID+"|") {
				continue
			}
			id := props["id"].(string)
			if !p.members[id] {
				rows = append(rows, map[string]any{"id": id})
			}
		}
		return rows, nil
	}
	return nil, fmt.Errorf("fake port: unknown read query")
}

func (p *fakePort) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeLog = append(p.writeLog, query)

	switch query {
	case QueryMergeEntities:
		tenantID := params["tenant_id"].(string)
		chunkID := params["chunk_id"].(string)
		rows := []map[string]any{}
		for _, raw := range params["entities"].([]map[string]any) {
			name := raw["name"].(string)
			key := tenantID + "|" + name
			props, ok := p.entities[key]
			if !ok {
				props = map[string]any{
					"id":          raw["id"],
					"name":        name,
					"description": raw["description"],
				}
				p.entities[key] = props
			} else {
				incoming := raw["description"].(string)
				existing := props["description"].(string)
				if incoming != "" && !strings.Contains(existing, incoming) {
					props["description"] = existing + "\n" + incoming
				}
			}
			if p.mentions[chunkID] == nil {
				p.mentions[chunkID] = map[string]bool{}
			}
			p.mentions[chunkID][props["id"].(string)] = true
			rows = append(rows, map[string]any{"id": props["id"]})
		}
		return rows, nil

	case QueryMergeRelationships:
		tenantID := params["tenant_id"].(string)
		for _, raw := range params["relationships"].([]map[string]any) {
			source := raw["source"].(string)
			target := raw["target"].(string)
			if _, ok := p.entities[tenantID+"|"+source]; !ok {
				continue
			}
			if _, ok := p.entities[tenantID+"|"+target]; !ok {
				continue
			}
			key := tenantID + "|" + source + "|" + target + "|" + raw["type"].(string)
			p.relationships[key] += raw["weight"].(float64)
		}
		return nil, nil

	case QueryMergeSimilarityEdges:
		for _, raw := range params["edges"].([]map[string]any) {
			key := raw["source"].(string) + "|" + raw["target"].(string)
			p.simEdges[key] = raw["score"].(float64)
		}
		return nil, nil

	case QueryMergeCoOccurrence:
		for _, raw := range params["pairs"].([]map[string]any) {
			key := raw["source"].(string) + "|" + raw["target"].(string)
			p.coEdges[key] = raw["weight"].(int)
		}
		return nil, nil

	case QueryMarkCommunitiesStale:
		ids := params["entity_ids"].([]string)
		marked := 0
		for _, id := range ids {
			if p.members[id] {
				marked = 1
			}
		}
		p.staleMarked += marked
		return []map[string]any{{"marked": int64(marked)}}, nil

	case QueryAssignOrphans:
		for _, id := range params["entity_ids"].([]string) {
			p.members[id] = true
		}
		return nil, nil

	case QueryMergeDocumentGraph, QueryEnsureCatchAllCommunity:
		return nil, nil
	}
	return nil, fmt.Errorf("fake port: unknown write query")
}

// fakeAIClient returns canned completion responses in order, repeating the
// last one when exhausted, and tracks concurrent in-flight calls.
type fakeAIClient struct {
	mu        sync.Mutex
	responses []string
	calls     int

	inFlight  int
	highWater int
	block     chan struct{}

	err error
}

func (c *fakeAIClient) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.highWater {
		c.highWater = c.inFlight
	}
	idx := c.calls
	c.calls++
	block := c.block
	err := c.err
	c.mu.Unlock()

	if block != nil {
		<-block
	}

	c.mu.Lock()
	c.inFlight--
	c.mu.Unlock()

	if err != nil {
		return "", err
	}
	if idx >= len(c.responses) {
		idx = len(c.responses) - 1
	}
	if idx < 0 {
		return "", nil
	}
	return c.responses[idx], nil
}

func (c *fakeAIClient) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	raw, err := c.GenerateCompletion(ctx, prompt, opts...)
	if err != nil {
		return err
	}
	return ai.UnmarshalFlexible(raw, out)
}

func (c *fakeAIClient) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return []float32{0.1, 0.2, 0.3}, nil
}

func (c *fakeAIClient) ResetMetrics()               {}
func (c *fakeAIClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

// fakeIndex is a canned vector index.
type fakeIndex struct {
	matches []vector.Match
}

func (f *fakeIndex) Upsert(ctx context.Context, points []vector.Point) error { return nil }

func (f *fakeIndex) Search(ctx context.Context, embedding []float32, tenantID string, limit int) ([]vector.Match, error) {
	if limit > len(f.matches) {
		limit = len(f.matches)
	}
	return f.matches[:limit], nil
}

func (f *fakeIndex) DeleteByDocument(ctx context.Context, documentID, tenantID string) error {
	return nil
}
