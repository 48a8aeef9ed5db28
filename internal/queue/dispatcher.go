package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/loomhq/loom/pkg/ingest"

	"github.com/rabbitmq/amqp091-go"
)

// TaskDeleteDocument is the task name for background document deletion.
const TaskDeleteDocument = "delete_document"

var taskQueues = map[string]string{
	ingest.TaskProcessDocument: ProcessQueue,
	TaskDeleteDocument:         DeleteQueue,
}

// Dispatcher publishes background tasks to their work queues. It
// implements the ingest.TaskDispatcher port.
type Dispatcher struct {
	ch *amqp091.Channel
}

func NewDispatcher(ch *amqp091.Channel) *Dispatcher {
	return &Dispatcher{ch: ch}
}

func (d *Dispatcher) Dispatch(ctx context.Context, taskName string, payload any) error {
	queueName, ok := taskQueues[taskName]
	if !ok {
		return fmt.Errorf("unknown task %q", taskName)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for task %q: %w", taskName, err)
	}

	if err := PublishFIFO(d.ch, queueName, data); err != nil {
		return fmt.Errorf("failed to publish task %q: %w", taskName, err)
	}
	return nil
}
