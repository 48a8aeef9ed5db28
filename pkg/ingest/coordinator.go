package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/loomhq/loom/pkg/ai"
	"github.com/loomhq/loom/pkg/common"
	"github.com/loomhq/loom/pkg/graph"
	"github.com/loomhq/loom/pkg/logger"
	"github.com/loomhq/loom/pkg/vector"

	"github.com/go-playground/validator"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// TaskProcessDocument is the task name dispatched for background
// processing of a registered document.
const TaskProcessDocument = "process_document"

// classificationSampleSize bounds the text sent to the domain classifier.
const classificationSampleSize = 2000

var domains = map[string]bool{
	"LEGAL": true, "TECHNICAL": true, "FINANCIAL": true,
	"MEDICAL": true, "GENERAL": true,
}

// Config carries the operational tunables of the pipeline.
type Config struct {
	// MaxUploadBytes is the upload size ceiling. Zero means 50 MiB.
	MaxUploadBytes int64
	// SimilarityThreshold is the minimum score for SIMILAR_TO edges.
	SimilarityThreshold float64
	// SimilarityLimit caps SIMILAR_TO edges per chunk.
	SimilarityLimit int
	// CoOccurrenceMinWeight is the minimum shared-chunk count for a
	// CO_OCCURS edge.
	CoOccurrenceMinWeight int
}

func (c Config) maxUploadBytes() int64 {
	if c.MaxUploadBytes <= 0 {
		return 50 << 20
	}
	return c.MaxUploadBytes
}

// Coordinator owns the document lifecycle from registration through the
// processing state machine to READY or FAILED.
type Coordinator struct {
	store       DocumentStore
	objects     ObjectStore
	dispatcher  TaskDispatcher
	publisher   StatePublisher
	extractor   TextExtractor
	chunker     Chunker
	aiClient    ai.GraphAIClient
	index       vector.Index
	writer      *graph.Writer
	processor   *graph.Processor
	enricher    *graph.Enricher
	communities *graph.CommunityManager
	config      Config
	validate    *validator.Validate
}

// CoordinatorParams collects the collaborators of a Coordinator.
type CoordinatorParams struct {
	Store       DocumentStore
	Objects     ObjectStore
	Dispatcher  TaskDispatcher
	Publisher   StatePublisher
	Extractor   TextExtractor
	Chunker     Chunker
	AIClient    ai.GraphAIClient
	Index       vector.Index
	Writer      *graph.Writer
	Processor   *graph.Processor
	Enricher    *graph.Enricher
	Communities *graph.CommunityManager
	Config      Config
}

// NewCoordinator wires a Coordinator from its collaborators.
func NewCoordinator(params CoordinatorParams) *Coordinator {
	return &Coordinator{
		store:       params.Store,
		objects:     params.Objects,
		dispatcher:  params.Dispatcher,
		publisher:   params.Publisher,
		extractor:   params.Extractor,
		chunker:     params.Chunker,
		aiClient:    params.AIClient,
		index:       params.Index,
		writer:      params.Writer,
		processor:   params.Processor,
		enricher:    params.Enricher,
		communities: params.Communities,
		config:      params.Config,
		validate:    validator.New(),
	}
}

// RegisterRequest is the input to RegisterDocument.
type RegisterRequest struct {
	TenantID    string `validate:"required"`
	Filename    string `validate:"required"`
	Content     []byte
	ContentType string `validate:"required"`
}

// RegisterResult is the outcome of a registration.
type RegisterResult struct {
	DocumentID  string                `json:"document_id"`
	Status      common.DocumentStatus `json:"status"`
	IsDuplicate bool                  `json:"is_duplicate"`
}

// RegisterDocument validates the upload, deduplicates it by content hash
// within the tenant, persists a new document in INGESTED state, stores
// the blob, and dispatches background processing. Registering identical
// bytes twice returns the existing document with IsDuplicate set and
// dispatches nothing.
func (c *Coordinator) RegisterDocument(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if err := c.validate.Struct(req); err != nil {
		return RegisterResult{}, fmt.Errorf("invalid register request: %w", err)
	}
	if len(req.Content) == 0 {
		return RegisterResult{}, ErrEmptyContent
	}
	if int64(len(req.Content)) > c.config.maxUploadBytes() {
		return RegisterResult{}, fmt.Errorf("%w: %d bytes", ErrContentTooLarge, len(req.Content))
	}

	hash := sha256.Sum256(req.Content)
	contentHash := hex.EncodeToString(hash[:])

	existing, err := c.store.FindByHash(ctx, req.TenantID, contentHash)
	if err != nil {
		return RegisterResult{}, fmt.Errorf("dedup lookup failed: %w", err)
	}
	if existing != nil {
		logger.Info("[Ingest] duplicate upload",
			"tenant_id", req.TenantID, "document_id", existing.ID)
		return RegisterResult{
			DocumentID:  existing.ID,
			Status:      existing.Status,
			IsDuplicate: true,
		}, nil
	}

	id, err := gonanoid.New()
	if err != nil {
		return RegisterResult{}, fmt.Errorf("failed to generate document id: %w", err)
	}
	storagePath := path.Join(req.TenantID, id, req.Filename)

	if err := c.objects.Upload(ctx, storagePath, req.Content); err != nil {
		return RegisterResult{}, fmt.Errorf("blob upload failed: %w", err)
	}

	now := time.Now().UTC()
	doc := &common.Document{
		ID:          id,
		TenantID:    req.TenantID,
		Filename:    req.Filename,
		ContentHash: contentHash,
		ContentType: req.ContentType,
		StoragePath: storagePath,
		Status:      common.StatusIngested,
		Domain:      "GENERAL",
		SourceType:  "upload",
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.store.Insert(ctx, doc); err != nil {
		return RegisterResult{}, fmt.Errorf("failed to persist document: %w", err)
	}

	if err := c.dispatcher.Dispatch(ctx, TaskProcessDocument, map[string]string{
		"document_id": doc.ID,
		"tenant_id":   doc.TenantID,
	}); err != nil {
		return RegisterResult{}, fmt.Errorf("failed to dispatch processing: %w", err)
	}

	logger.Info("[Ingest] document registered",
		"tenant_id", req.TenantID, "document_id", doc.ID, "filename", req.Filename)
	return RegisterResult{
		DocumentID:  doc.ID,
		Status:      doc.Status,
		IsDuplicate: false,
	}, nil
}

// ProcessDocument drives the document through its remaining pipeline
// stages. It accepts documents in INGESTED state and FAILED documents
// being retried by the task layer; anything mid-pipeline or READY is a
// state conflict. Stage failure transitions the document to FAILED with
// the error message recorded; retry policy belongs to the task layer.
func (c *Coordinator) ProcessDocument(ctx context.Context, documentID, tenantID string) error {
	doc, err := c.store.GetByID(ctx, documentID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", documentID, err)
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	switch doc.Status {
	case common.StatusIngested:
	case common.StatusFailed:
		// Task-layer retry restarts the pipeline from scratch. Chunk ids
		// are minted per run, so the previous run's partial chunk state
		// must go first or the rerun would stack a second generation of
		// chunks, vectors, and graph nodes on top of it.
		if err := c.purgePartialRun(ctx, doc); err != nil {
			return err
		}
		doc.Status = common.StatusIngested
		if err := c.store.UpdateStatus(ctx, doc.ID, doc.Status, ""); err != nil {
			return fmt.Errorf("failed to reset document for retry: %w", err)
		}
	default:
		logger.Warn("[Ingest] state conflict, refusing to process",
			"document_id", doc.ID, "status", doc.Status)
		return fmt.Errorf("%w: %s is %s", ErrStateConflict, doc.ID, doc.Status)
	}

	content, err := c.objects.Get(ctx, doc.StoragePath)
	if err != nil {
		return c.fail(ctx, doc, fmt.Errorf("failed to fetch blob: %w", err))
	}

	// CLASSIFYING
	if err := c.advance(ctx, doc, common.StatusClassifying); err != nil {
		return err
	}
	c.classify(ctx, doc, string(content))

	// EXTRACTING
	if err := c.advance(ctx, doc, common.StatusExtracting); err != nil {
		return err
	}
	text, err := c.extractor.Extract(content, doc.ContentType)
	if err != nil {
		return c.fail(ctx, doc, fmt.Errorf("text extraction failed: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		return c.fail(ctx, doc, fmt.Errorf("document contains no extractable text"))
	}

	// CHUNKING
	if err := c.advance(ctx, doc, common.StatusChunking); err != nil {
		return err
	}
	chunks, err := c.chunker.Split(doc.ID, text)
	if err != nil {
		return c.fail(ctx, doc, fmt.Errorf("chunking failed: %w", err))
	}
	if len(chunks) == 0 {
		return c.fail(ctx, doc, fmt.Errorf("chunking produced no chunks"))
	}
	if err := c.store.InsertChunks(ctx, chunks); err != nil {
		return c.fail(ctx, doc, fmt.Errorf("failed to persist chunks: %w", err))
	}

	// EMBEDDING
	if err := c.advance(ctx, doc, common.StatusEmbedding); err != nil {
		return err
	}
	embeddings, err := c.embedChunks(ctx, doc, chunks)
	if err != nil {
		return c.fail(ctx, doc, fmt.Errorf("embedding failed: %w", err))
	}

	// GRAPH_SYNCING
	if err := c.advance(ctx, doc, common.StatusGraphSyncing); err != nil {
		return err
	}
	if err := c.writer.SyncDocument(ctx, *doc, chunks); err != nil {
		return c.fail(ctx, doc, fmt.Errorf("graph sync failed: %w", err))
	}
	entityIDs, err := c.processor.ProcessChunks(ctx, doc.TenantID, chunks)
	if err != nil {
		return c.fail(ctx, doc, fmt.Errorf("graph processing failed: %w", err))
	}

	// ENRICHING
	if err := c.advance(ctx, doc, common.StatusEnriching); err != nil {
		return err
	}
	c.enrich(ctx, doc, chunks, embeddings, entityIDs)

	if err := c.advance(ctx, doc, common.StatusReady); err != nil {
		return err
	}
	logger.Info("[Ingest] document ready",
		"document_id", doc.ID, "tenant_id", doc.TenantID, "chunks", len(chunks))
	return nil
}

// purgePartialRun removes everything a failed earlier run may have left
// behind: chunk rows, vectors, and the document's graph footprint.
// Purge failures abort the rerun so a later redelivery can try again.
func (c *Coordinator) purgePartialRun(ctx context.Context, doc *common.Document) error {
	if err := c.store.DeleteChunks(ctx, doc.ID); err != nil {
		return fmt.Errorf("failed to purge chunks before rerun: %w", err)
	}
	if err := c.index.DeleteByDocument(ctx, doc.ID, doc.TenantID); err != nil {
		return fmt.Errorf("failed to purge vectors before rerun: %w", err)
	}
	if err := c.writer.PurgeDocument(ctx, doc.ID, doc.TenantID); err != nil {
		return fmt.Errorf("failed to purge graph state before rerun: %w", err)
	}
	logger.Info("[Ingest] purged partial run before retry",
		"document_id", doc.ID, "tenant_id", doc.TenantID)
	return nil
}

// classify asks the model for the document's business domain. Failures
// are absorbed; the document keeps the GENERAL default.
func (c *Coordinator) classify(ctx context.Context, doc *common.Document, text string) {
	sample := text
	if len(sample) > classificationSampleSize {
		sample = sample[:classificationSampleSize]
	}

	var out struct {
		Domain string `json:"domain"`
	}
	err := c.aiClient.GenerateCompletionWithFormat(
		ctx,
		"classify_document_domain",
		"Classify a document into one business domain.",
		sample,
		&out,
		ai.WithSystemPrompts(ai.ClassifyPrompt),
		ai.WithTemperature(0),
	)
	if err != nil {
		logger.Warn("[Ingest] classification failed, keeping GENERAL",
			"document_id", doc.ID, "err", err)
		return
	}

	domain := strings.ToUpper(strings.TrimSpace(out.Domain))
	if !domains[domain] {
		domain = "GENERAL"
	}
	doc.Domain = domain
	if err := c.store.UpdateDomain(ctx, doc.ID, domain); err != nil {
		logger.Warn("[Ingest] failed to store domain", "document_id", doc.ID, "err", err)
	}
}

// embedChunks generates and stores an embedding per chunk, returning the
// vectors keyed by chunk id for the enrichment stage.
func (c *Coordinator) embedChunks(ctx context.Context, doc *common.Document, chunks []common.Chunk) (map[string][]float32, error) {
	embeddings := make(map[string][]float32, len(chunks))
	points := make([]vector.Point, 0, len(chunks))
	for _, chunk := range chunks {
		embedding, err := c.aiClient.GenerateEmbedding(ctx, []byte(chunk.Content))
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %w", chunk.ID, err)
		}
		embeddings[chunk.ID] = embedding
		points = append(points, vector.Point{
			ChunkID:    chunk.ID,
			DocumentID: doc.ID,
			TenantID:   doc.TenantID,
			Embedding:  embedding,
		})
	}
	if err := c.index.Upsert(ctx, points); err != nil {
		return nil, err
	}

	chunkIDs := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		chunkIDs = append(chunkIDs, chunk.ID)
	}
	if err := c.store.MarkChunksEmbedded(ctx, chunkIDs); err != nil {
		return nil, err
	}
	return embeddings, nil
}

// enrich adds derived edges and community bookkeeping. Everything here
// is best-effort: enrichment failures degrade retrieval quality but
// never fail a document that already has its core graph.
func (c *Coordinator) enrich(
	ctx context.Context,
	doc *common.Document,
	chunks []common.Chunk,
	embeddings map[string][]float32,
	entityIDs []string,
) {
	for _, chunk := range chunks {
		embedding, ok := embeddings[chunk.ID]
		if !ok {
			continue
		}
		_, err := c.enricher.CreateSimilarityEdges(
			ctx, chunk.ID, embedding, doc.TenantID,
			c.config.SimilarityThreshold, c.config.SimilarityLimit,
		)
		if err != nil {
			logger.Warn("[Ingest] similarity enrichment failed",
				"chunk_id", chunk.ID, "err", err)
		}
	}

	if _, err := c.enricher.ComputeCoOccurrence(ctx, doc.TenantID, c.config.CoOccurrenceMinWeight); err != nil {
		logger.Warn("[Ingest] co-occurrence enrichment failed",
			"document_id", doc.ID, "err", err)
	}

	if _, err := c.communities.MarkStaleByEntities(ctx, entityIDs); err != nil {
		logger.Warn("[Ingest] community staleness marking failed",
			"document_id", doc.ID, "err", err)
	}
	if _, err := c.communities.CleanupOrphans(ctx, doc.TenantID); err != nil {
		logger.Warn("[Ingest] community orphan cleanup failed",
			"document_id", doc.ID, "err", err)
	}
}

// advance moves the document exactly one pipeline step and publishes the
// transition.
func (c *Coordinator) advance(ctx context.Context, doc *common.Document, target common.DocumentStatus) error {
	if !doc.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: cannot move %s from %s to %s",
			ErrStateConflict, doc.ID, doc.Status, target)
	}
	if err := c.store.UpdateStatus(ctx, doc.ID, target, ""); err != nil {
		return fmt.Errorf("failed to persist transition to %s: %w", target, err)
	}
	c.publish(doc, target, "")
	doc.Status = target
	return nil
}

// fail transitions the document to FAILED with the error recorded and
// returns the original error for the task layer's retry decision.
func (c *Coordinator) fail(ctx context.Context, doc *common.Document, cause error) error {
	logger.Error("[Ingest] stage failed",
		"document_id", doc.ID, "status", doc.Status, "err", cause)
	if err := c.store.UpdateStatus(ctx, doc.ID, common.StatusFailed, cause.Error()); err != nil {
		logger.Error("[Ingest] failed to record failure", "document_id", doc.ID, "err", err)
	}
	c.publish(doc, common.StatusFailed, cause.Error())
	doc.Status = common.StatusFailed
	return cause
}

func (c *Coordinator) publish(doc *common.Document, to common.DocumentStatus, errMsg string) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(StateChangeEvent{
		DocumentID:   doc.ID,
		TenantID:     doc.TenantID,
		From:         doc.Status,
		To:           to,
		ErrorMessage: errMsg,
		At:           time.Now().UTC(),
	})
}
