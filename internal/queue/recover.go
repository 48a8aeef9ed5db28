package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/loomhq/loom/internal/util"
	"github.com/loomhq/loom/pkg/common"
	"github.com/loomhq/loom/pkg/ingest"
	"github.com/loomhq/loom/pkg/logger"
)

// RecoverStuckDocuments sweeps non-terminal documents that stopped
// moving, typically after a worker crash. Documents still in INGESTED
// never started processing and are safely re-enqueued; anything caught
// mid-pipeline is marked FAILED so the task layer's retry path owns the
// rerun decision.
func RecoverStuckDocuments(
	ctx context.Context,
	dispatcher ingest.TaskDispatcher,
	store ingest.DocumentStore,
) error {
	olderThanMinutes := util.GetEnvInt("RECOVER_STUCK_AFTER_MINUTES", 30)
	olderThan := time.Duration(olderThanMinutes) * time.Minute

	stuck, err := store.StuckDocuments(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("failed to find stuck documents: %w", err)
	}
	if len(stuck) == 0 {
		logger.Debug("[Queue] No stuck documents found")
		return nil
	}

	logger.Info("[Queue] Found stuck documents", "count", len(stuck))

	for _, doc := range stuck {
		if doc.Status == common.StatusIngested {
			err := dispatcher.Dispatch(ctx, ingest.TaskProcessDocument, ProcessDocumentMsg{
				DocumentID: doc.ID,
				TenantID:   doc.TenantID,
			})
			if err != nil {
				logger.Error("[Queue] Failed to re-enqueue stuck document",
					"document_id", doc.ID, "err", err)
				continue
			}
			logger.Info("[Queue] Re-enqueued stuck document",
				"document_id", doc.ID, "tenant_id", doc.TenantID)
			continue
		}

		message := fmt.Sprintf("processing interrupted in %s", doc.Status)
		if err := store.UpdateStatus(ctx, doc.ID, common.StatusFailed, message); err != nil {
			logger.Error("[Queue] Failed to mark stuck document FAILED",
				"document_id", doc.ID, "err", err)
			continue
		}
		logger.Info("[Queue] Marked stuck document FAILED",
			"document_id", doc.ID, "stage", doc.Status)
	}

	return nil
}
