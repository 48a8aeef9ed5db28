package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/loomhq/loom/pkg/ingest"
	"github.com/loomhq/loom/pkg/logger"
)

// DeleteDocumentMsg is the payload on the delete queue.
type DeleteDocumentMsg struct {
	DocumentID   string `json:"document_id"`
	TenantID     string `json:"tenant_id"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

// ProcessDeleteMessage removes one document's footprint across all
// stores.
func ProcessDeleteMessage(
	ctx context.Context,
	deleter *ingest.Deleter,
	msg string,
) error {
	var data DeleteDocumentMsg
	if err := json.Unmarshal([]byte(msg), &data); err != nil {
		return errors.Join(errNotRetryable, err)
	}
	if data.DocumentID == "" {
		logger.Warn("[Queue] Dropping delete message without document id", "body", msg)
		return nil
	}

	_, err := deleter.DeleteDocument(ctx, data.DocumentID, data.TenantID, data.IsSuperAdmin)
	return err
}
