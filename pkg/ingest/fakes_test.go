package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loomhq/loom/pkg/ai"
	"github.com/loomhq/loom/pkg/common"
	"github.com/loomhq/loom/pkg/graph"
	"github.com/loomhq/loom/pkg/vector"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// fakeStore is an in-memory DocumentStore.
type fakeStore struct {
	mu     sync.Mutex
	docs   map[string]*common.Document
	chunks map[string][]common.Chunk

	insertErr error
	chunkErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:   map[string]*common.Document{},
		chunks: map[string][]common.Chunk{},
	}
}

func (s *fakeStore) Insert(ctx context.Context, doc *common.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

func (s *fakeStore) GetByID(ctx context.Context, id, tenantID string) (*common.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok || doc.TenantID != tenantID {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeStore) GetByIDAnyTenant(ctx context.Context, id string) (*common.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (s *fakeStore) FindByHash(ctx context.Context, tenantID, contentHash string) (*common.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range s.docs {
		if doc.TenantID == tenantID && doc.ContentHash == contentHash {
			cp := *doc
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id string, status common.DocumentStatus, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return errors.New("document not found")
	}
	doc.Status = status
	doc.ErrorMessage = errorMessage
	doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *fakeStore) UpdateDomain(ctx context.Context, id, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		doc.Domain = domain
	}
	return nil
}

func (s *fakeStore) InsertChunks(ctx context.Context, chunks []common.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunkErr != nil {
		return s.chunkErr
	}
	for _, c := range chunks {
		s.chunks[c.DocumentID] = append(s.chunks[c.DocumentID], c)
	}
	return nil
}

func (s *fakeStore) DeleteChunks(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chunks, documentID)
	return nil
}

func (s *fakeStore) MarkChunksEmbedded(ctx context.Context, chunkIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	marked := map[string]bool{}
	for _, id := range chunkIDs {
		marked[id] = true
	}
	for docID, chunks := range s.chunks {
		for i := range chunks {
			if marked[chunks[i].ID] {
				chunks[i].EmbeddingStatus = "embedded"
			}
		}
		s.chunks[docID] = chunks
	}
	return nil
}

func (s *fakeStore) ChunksByDocument(ctx context.Context, documentID string) ([]common.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks[documentID], nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	delete(s.chunks, id)
	return nil
}

func (s *fakeStore) StuckDocuments(ctx context.Context, olderThan time.Duration) ([]common.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var stuck []common.Document
	for _, doc := range s.docs {
		if !doc.Status.Terminal() && doc.UpdatedAt.Before(cutoff) {
			stuck = append(stuck, *doc)
		}
	}
	return stuck, nil
}

func (s *fakeStore) status(id string) common.DocumentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		return doc.Status
	}
	return ""
}

// fakeObjects is an in-memory ObjectStore.
type fakeObjects struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	deleteErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{blobs: map[string][]byte{}}
}

func (o *fakeObjects) Upload(ctx context.Context, path string, content []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blobs[path] = content
	return nil
}

func (o *fakeObjects) Get(ctx context.Context, path string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	blob, ok := o.blobs[path]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", path)
	}
	return blob, nil
}

func (o *fakeObjects) Delete(ctx context.Context, path string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.deleteErr != nil {
		return o.deleteErr
	}
	delete(o.blobs, path)
	return nil
}

func (o *fakeObjects) DeletePrefix(ctx context.Context, prefix string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for path := range o.blobs {
		if strings.HasPrefix(path, prefix) {
			delete(o.blobs, path)
		}
	}
	return nil
}

// fakeDispatcher records dispatched tasks.
type fakeDispatcher struct {
	mu    sync.Mutex
	tasks []string
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, taskName string, payload any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, taskName)
	return nil
}

// fakePublisher records state transitions.
type fakePublisher struct {
	mu     sync.Mutex
	events []StateChangeEvent
}

func (p *fakePublisher) Publish(event StateChangeEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

// passthroughExtractor returns the content as-is.
type passthroughExtractor struct{}

func (passthroughExtractor) Extract(content []byte, contentType string) (string, error) {
	return string(content), nil
}

// failingExtractor rejects every payload.
type failingExtractor struct {
	err error
}

func (f failingExtractor) Extract(content []byte, contentType string) (string, error) {
	return "", f.err
}

// lineChunker makes one chunk per non-empty line.
type lineChunker struct {
	err error
}

func (c lineChunker) Split(documentID, text string) ([]common.Chunk, error) {
	if c.err != nil {
		return nil, c.err
	}
	var chunks []common.Chunk
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		id, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, common.Chunk{
			ID:         id,
			DocumentID: documentID,
			Index:      len(chunks),
			Content:    line,
			TokenCount: len(strings.Fields(line)),
		})
	}
	return chunks, nil
}

// fakeAI answers classification calls with GENERAL and extraction calls
// with a fixed two-entity result.
type fakeAI struct {
	mu             sync.Mutex
	completions    int
	embedding      []float32
	completionsErr error
	embedErr       error
}

const fakeExtraction = `{
  "entities": [
    {"name": "NEO4J", "type": "TECHNOLOGY", "description": "A graph database.", "importance": 0.9},
    {"name": "PYTHON", "type": "TECHNOLOGY", "description": "A language.", "importance": 0.8}
  ],
  "relationships": [
    {"source": "PYTHON", "target": "NEO4J", "type": "CONNECTS_TO", "description": "driver", "weight": 0.7}
  ]
}`

func (c *fakeAI) GenerateCompletion(ctx context.Context, prompt string, opts ...ai.GenerateOption) (string, error) {
	c.mu.Lock()
	c.completions++
	err := c.completionsErr
	c.mu.Unlock()
	if err != nil {
		return "", err
	}
	return fakeExtraction, nil
}

func (c *fakeAI) GenerateCompletionWithFormat(ctx context.Context, name, description, prompt string, out any, opts ...ai.GenerateOption) error {
	return ai.UnmarshalFlexible(`{"domain": "TECHNICAL"}`, out)
}

func (c *fakeAI) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	c.mu.Lock()
	err := c.embedErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if c.embedding != nil {
		return c.embedding, nil
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (c *fakeAI) ResetMetrics()               {}
func (c *fakeAI) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

// fakeIndex stores points in memory and searches by insertion order.
type fakeIndex struct {
	mu        sync.Mutex
	points    map[string]vector.Point
	deleteErr error
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{points: map[string]vector.Point{}}
}

func (f *fakeIndex) Upsert(ctx context.Context, points []vector.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range points {
		f.points[p.ChunkID] = p
	}
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, embedding []float32, tenantID string, limit int) ([]vector.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	matches := []vector.Match{}
	for _, p := range f.points {
		if p.TenantID != tenantID || len(matches) >= limit {
			continue
		}
		matches = append(matches, vector.Match{ChunkID: p.ChunkID, Score: 0.9})
	}
	return matches, nil
}

func (f *fakeIndex) DeleteByDocument(ctx context.Context, documentID, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for id, p := range f.points {
		if p.DocumentID == documentID && p.TenantID == tenantID {
			delete(f.points, id)
		}
	}
	return nil
}

func (f *fakeIndex) countByDocument(documentID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.points {
		if p.DocumentID == documentID {
			n++
		}
	}
	return n
}

// fakeGraph interprets the graph package's query constants over an
// in-memory node/edge model, including orphan-entity deletion.
type fakeGraph struct {
	mu sync.Mutex

	deleteErr error // injected on QueryDeleteDocumentGraph

	docs        map[string]string   // document id -> tenant
	chunksByDoc map[string][]string // document id -> chunk ids
	entities    map[string]map[string]any
	mentions    map[string]map[string]bool // chunk id -> entity ids
	members     map[string]bool            // entity ids in a community
	simEdges    map[string]float64
	coEdges     map[string]int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		docs:        map[string]string{},
		chunksByDoc: map[string][]string{},
		entities:    map[string]map[string]any{},
		mentions:    map[string]map[string]bool{},
		members:     map[string]bool{},
		simEdges:    map[string]float64{},
		coEdges:     map[string]int{},
	}
}

func (g *fakeGraph) hasEntity(tenantID, name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.entities[tenantID+"|"+name]
	return ok
}

func (g *fakeGraph) chunkCount(documentID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.chunksByDoc[documentID])
}

func (g *fakeGraph) ExecuteRead(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch query {
	case graph.QueryMentionPairs:
		rows := []map[string]any{}
		for chunkID, entityIDs := range g.mentions {
			for entityID := range entityIDs {
				rows = append(rows, map[string]any{"chunk_id": chunkID, "entity_id": entityID})
			}
		}
		return rows, nil

	case graph.QueryOrphanEntities:
		tenantID := params["tenant_id"].(string)
		rows := []map[string]any{}
		for key, props := range g.entities {
			if !strings.HasPrefix(key, tenantID+"|") {
				continue
			}
			id := props["id"].(string)
			if !g.members[id] {
				rows = append(rows, map[string]any{"id": id})
			}
		}
		return rows, nil
	}
	return nil, fmt.Errorf("fake graph: unknown read query")
}

func (g *fakeGraph) ExecuteWrite(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch query {
	case graph.QueryMergeDocumentGraph:
		docID := params["document_id"].(string)
		g.docs[docID] = params["tenant_id"].(string)
		for _, raw := range params["chunks"].([]map[string]any) {
			chunkID := raw["id"].(string)
			g.chunksByDoc[docID] = append(g.chunksByDoc[docID], chunkID)
		}
		return nil, nil

	case graph.QueryMergeEntities:
		tenantID := params["tenant_id"].(string)
		chunkID := params["chunk_id"].(string)
		rows := []map[string]any{}
		for _, raw := range params["entities"].([]map[string]any) {
			key := tenantID + "|" + raw["name"].(string)
			props, ok := g.entities[key]
			if !ok {
				props = map[string]any{"id": raw["id"], "name": raw["name"]}
				g.entities[key] = props
			}
			if g.mentions[chunkID] == nil {
				g.mentions[chunkID] = map[string]bool{}
			}
			g.mentions[chunkID][props["id"].(string)] = true
			rows = append(rows, map[string]any{"id": props["id"]})
		}
		return rows, nil

	case graph.QueryMergeRelationships:
		return nil, nil

	case graph.QueryMergeSimilarityEdges:
		for _, raw := range params["edges"].([]map[string]any) {
			g.simEdges[raw["source"].(string)+"|"+raw["target"].(string)] = raw["score"].(float64)
		}
		return nil, nil

	case graph.QueryMergeCoOccurrence:
		for _, raw := range params["pairs"].([]map[string]any) {
			g.coEdges[raw["source"].(string)+"|"+raw["target"].(string)] = raw["weight"].(int)
		}
		return nil, nil

	case graph.QueryMarkCommunitiesStale:
		return []map[string]any{{"marked": int64(0)}}, nil

	case graph.QueryEnsureCatchAllCommunity:
		return nil, nil

	case graph.QueryAssignOrphans:
		for _, id := range params["entity_ids"].([]string) {
			g.members[id] = true
		}
		return nil, nil

	case graph.QueryDeleteDocumentGraph:
		if g.deleteErr != nil {
			return nil, g.deleteErr
		}
		docID := params["document_id"].(string)
		for _, chunkID := range g.chunksByDoc[docID] {
			delete(g.mentions, chunkID)
		}
		delete(g.chunksByDoc, docID)
		delete(g.docs, docID)

		// Entities with no remaining mention from any chunk are removed.
		mentioned := map[string]bool{}
		for _, entityIDs := range g.mentions {
			for id := range entityIDs {
				mentioned[id] = true
			}
		}
		for key, props := range g.entities {
			if !mentioned[props["id"].(string)] {
				delete(g.entities, key)
			}
		}
		return nil, nil
	}
	return nil, fmt.Errorf("fake graph: unknown write query")
}
