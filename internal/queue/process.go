package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/loomhq/loom/pkg/ingest"
	"github.com/loomhq/loom/pkg/logger"
)

// ProcessDocumentMsg is the payload on the process queue.
type ProcessDocumentMsg struct {
	DocumentID string `json:"document_id"`
	TenantID   string `json:"tenant_id"`
}

// ProcessDocumentMessage runs the ingestion pipeline for one queued
// document. Not-found and state-conflict outcomes are absorbed after
// logging: redelivering those messages can never succeed, and the
// document itself is not in a broken state.
func ProcessDocumentMessage(
	ctx context.Context,
	coordinator *ingest.Coordinator,
	msg string,
) error {
	var data ProcessDocumentMsg
	if err := json.Unmarshal([]byte(msg), &data); err != nil {
		return errors.Join(errNotRetryable, err)
	}
	if data.DocumentID == "" || data.TenantID == "" {
		logger.Warn("[Queue] Dropping process message without ids", "body", msg)
		return nil
	}

	err := coordinator.ProcessDocument(ctx, data.DocumentID, data.TenantID)
	if errors.Is(err, ingest.ErrDocumentNotFound) || errors.Is(err, ingest.ErrStateConflict) {
		logger.Warn("[Queue] Dropping unprocessable document message",
			"document_id", data.DocumentID, "err", err)
		return nil
	}
	return err
}
