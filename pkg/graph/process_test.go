package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/loomhq/loom/pkg/common"
)

func makeChunks(n int) []common.Chunk {
	chunks := make([]common.Chunk, 0, n)
	for i := 0; i < n; i++ {
		chunks = append(chunks, common.Chunk{
			ID:         fmt.Sprintf("chunk%d", i),
			DocumentID: "doc1",
			Index:      i,
			Content:    strings.Repeat("graph databases store connected data. ", 4),
		})
	}
	return chunks
}

func TestProcessChunksRespectsConcurrencyBound(t *testing.T) {
	const limit = 3
	client := &fakeAIClient{
		responses: []string{baseResponse},
		block:     make(chan struct{}),
	}
	p := NewProcessor(NewExtractor(client, nil, 0), NewWriter(newFakePort()), limit, 0)

	done := make(chan error, 1)
	go func() {
		_, err := p.ProcessChunks(context.Background(), "tenant1", makeChunks(12))
		done <- err
	}()

	// Wait until the pool is saturated, then release all calls.
	deadline := time.Now().Add(2 * time.Second)
	for {
		client.mu.Lock()
		saturated := client.inFlight == limit
		client.mu.Unlock()
		if saturated {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("pool never saturated")
		}
		time.Sleep(time.Millisecond)
	}
	close(client.block)

	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	if client.highWater > limit {
		t.Fatalf("concurrency bound violated: %d in flight, limit %d", client.highWater, limit)
	}
	if client.calls != 12 {
		t.Fatalf("expected 12 extraction calls, got %d", client.calls)
	}
}

func TestProcessChunksSkipsShortChunks(t *testing.T) {
	client := &fakeAIClient{responses: []string{baseResponse}}
	p := NewProcessor(NewExtractor(client, nil, 0), NewWriter(newFakePort()), 2, 50)

	chunks := []common.Chunk{
		{ID: "tiny", Content: "too short"},
		{ID: "real", Content: strings.Repeat("long enough content for extraction. ", 3)},
	}
	if _, err := p.ProcessChunks(context.Background(), "tenant1", chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected short chunk to be skipped, got %d calls", client.calls)
	}
}

func TestProcessChunksAbsorbsPerChunkFailures(t *testing.T) {
	client := &fakeAIClient{err: errors.New("rate limited")}
	p := NewProcessor(NewExtractor(client, nil, 0), NewWriter(newFakePort()), 2, 0)

	ids, err := p.ProcessChunks(context.Background(), "tenant1", makeChunks(4))
	if err != nil {
		t.Fatalf("per-chunk failures must not fail the batch: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no entity ids, got %v", ids)
	}
	// Each failing chunk gets a second attempt before it is skipped.
	if client.calls != 4*extractMaxRetries {
		t.Fatalf("expected all 4 chunks attempted with retries, got %d calls", client.calls)
	}
}

func TestProcessChunksCollectsEntityIDs(t *testing.T) {
	client := &fakeAIClient{responses: []string{baseResponse}}
	port := newFakePort()
	p := NewProcessor(NewExtractor(client, nil, 0), NewWriter(port), 2, 0)

	ids, err := p.ProcessChunks(context.Background(), "tenant1", makeChunks(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same two entities from every chunk merge into two nodes, but each
	// chunk's write reports the ids it touched.
	if len(ids) != 6 {
		t.Fatalf("expected 6 touched entity ids, got %d", len(ids))
	}
	if len(port.entities) != 2 {
		t.Fatalf("expected 2 entity nodes, got %d", len(port.entities))
	}
}
