package graph

import (
	"context"
	"sync"

	"github.com/loomhq/loom/internal/util"
	"github.com/loomhq/loom/pkg/common"
	"github.com/loomhq/loom/pkg/logger"

	"golang.org/x/sync/errgroup"
)

// DefaultMinChunkLength is the content length below which a chunk is not
// worth an extraction call.
const DefaultMinChunkLength = 50

// extractMaxRetries bounds attempts per chunk before the chunk is skipped.
const extractMaxRetries = 2

// DefaultParallelMax bounds concurrently in-flight extraction calls per
// document, chosen for provider rate limits rather than throughput.
const DefaultParallelMax = 5

// Processor orchestrates extraction and writing across all chunks of a
// document with bounded concurrency.
type Processor struct {
	extractor      *Extractor
	writer         *Writer
	parallelMax    int
	minChunkLength int
}

// NewProcessor builds a Processor. parallelMax <= 0 and
// minChunkLength < 0 fall back to the defaults.
func NewProcessor(extractor *Extractor, writer *Writer, parallelMax, minChunkLength int) *Processor {
	if parallelMax <= 0 {
		parallelMax = DefaultParallelMax
	}
	if minChunkLength < 0 {
		minChunkLength = DefaultMinChunkLength
	}
	return &Processor{
		extractor:      extractor,
		writer:         writer,
		parallelMax:    parallelMax,
		minChunkLength: minChunkLength,
	}
}

// ProcessChunks extracts and writes graph data for every chunk, never
// running more than the configured limit in flight at once. A single
// chunk's failure is logged and absorbed so sibling chunks finish. The
// call returns after all scheduled work completes, with the graph ids of
// every entity written across all chunks.
func (p *Processor) ProcessChunks(ctx context.Context, tenantID string, chunks []common.Chunk) ([]string, error) {
	entityIDs := make([]string, 0)
	mergeMu := sync.Mutex{}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelMax)
	for _, chunk := range chunks {
		c := chunk
		if len(c.Content) < p.minChunkLength {
			continue
		}
		g.Go(func() error {
			select {
			case <-gCtx.Done():
				return nil
			default:
			}

			result, err := util.RetryWithContext(gCtx, extractMaxRetries, func(ctx context.Context) (common.ExtractionResult, error) {
				return p.extractor.Extract(ctx, c.Content)
			})
			if err != nil {
				logger.Warn("[Process] extraction failed, skipping chunk", "chunk_id", c.ID, "err", err)
				return nil
			}
			if len(result.Entities) == 0 {
				return nil
			}

			ids, err := p.writer.WriteExtraction(gCtx, tenantID, c.ID, result)
			if err != nil {
				logger.Warn("[Process] graph write failed, skipping chunk", "chunk_id", c.ID, "err", err)
				return nil
			}

			mergeMu.Lock()
			entityIDs = append(entityIDs, ids...)
			mergeMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entityIDs, nil
}
