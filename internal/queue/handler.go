package queue

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/loomhq/loom/internal/util"
	"github.com/loomhq/loom/pkg/ai"
	"github.com/loomhq/loom/pkg/common"
	"github.com/loomhq/loom/pkg/ingest"
	"github.com/loomhq/loom/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// errNotRetryable marks handler failures that redelivery cannot fix,
// such as unparseable message bodies.
var errNotRetryable = errors.New("not retryable")

// HandleProcessingError routes a failed delivery. Fatal provider errors
// and malformed messages go straight to the dead-letter queue; transient
// failures are republished to the retry queue until the attempt ceiling
// from QUEUE_MAX_RETRIES is reached, after which the document is marked
// FAILED and the message dead-lettered.
func HandleProcessingError(
	ctx context.Context,
	ch *amqp091.Channel,
	store ingest.DocumentStore,
	msg amqp091.Delivery,
	queueName string,
	cause error,
) {
	maxRetries := util.GetEnvInt("QUEUE_MAX_RETRIES", 3)

	retries := 0
	if val, ok := msg.Headers["x-retries"]; ok {
		if v, ok := val.(int32); ok {
			retries = int(v)
		}
	}

	if shouldDeadLetter(cause, retries, maxRetries) {
		// Only ingestion failures are surfaced on the document; an
		// exhausted delete task leaves the document state alone.
		if queueName == ProcessQueue {
			markFailed(ctx, store, msg.Body, cause)
		}
		deadLetter(ch, msg, queueName)
		return
	}

	retryName := queueName + "_retry"
	headers := msg.Headers
	if headers == nil {
		headers = amqp091.Table{}
	}
	headers["x-retries"] = int32(retries + 1)

	pubErr := ch.Publish(
		"",
		retryName,
		false,
		false,
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to retry queue", "retry_queue", retryName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

// shouldDeadLetter decides between the retry queue and the DLQ. Fatal
// provider errors and unparseable messages never retry; everything else
// retries until the ceiling.
func shouldDeadLetter(cause error, retries, maxRetries int) bool {
	return ai.IsFatal(cause) || errors.Is(cause, errNotRetryable) || retries >= maxRetries
}

func deadLetter(ch *amqp091.Channel, msg amqp091.Delivery, queueName string) {
	dlqName := queueName + "_dlq"
	logger.Info("Sending message to DLQ", "dlq", dlqName)
	pubErr := ch.Publish(
		"",
		dlqName,
		false,
		false,
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        msg.Body,
			Headers:     msg.Headers,
		},
	)
	if pubErr != nil {
		logger.Error("Failed to publish to DLQ", "dlq", dlqName, "err", pubErr)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}

// markFailed records the terminal failure on the document so it does not
// look stuck once its message leaves the work queue.
func markFailed(ctx context.Context, store ingest.DocumentStore, body []byte, cause error) {
	var data ProcessDocumentMsg
	if err := json.Unmarshal(body, &data); err != nil || data.DocumentID == "" {
		return
	}

	doc, err := store.GetByID(ctx, data.DocumentID, data.TenantID)
	if err != nil || doc == nil || doc.Status.Terminal() {
		return
	}
	if err := store.UpdateStatus(ctx, data.DocumentID, common.StatusFailed, cause.Error()); err != nil {
		logger.Error("[Queue] Failed to mark document FAILED",
			"document_id", data.DocumentID, "err", err)
	}
}
