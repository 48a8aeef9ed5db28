package queue

import (
	"encoding/json"
	"fmt"

	"github.com/loomhq/loom/internal/util"
	"github.com/loomhq/loom/pkg/ingest"
	"github.com/loomhq/loom/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// StatusPublisher broadcasts document state transitions on the pubsub
// exchange. Publishing is best-effort: a broker hiccup here must never
// stall the pipeline, so failures are only logged.
type StatusPublisher struct {
	ch *amqp091.Channel
}

func NewStatusPublisher(ch *amqp091.Channel) *StatusPublisher {
	return &StatusPublisher{ch: ch}
}

func (p *StatusPublisher) Publish(event ingest.StateChangeEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Warn("[Queue] Failed to marshal status event",
			"document_id", event.DocumentID, "err", err)
		return
	}

	topic := fmt.Sprintf("documents.status.%s", event.TenantID)
	err = util.RetryErr(2, func() error {
		return PublishTopic(p.ch, topic, data)
	})
	if err != nil {
		logger.Warn("[Queue] Failed to publish status event",
			"document_id", event.DocumentID, "topic", topic, "err", err)
	}
}
