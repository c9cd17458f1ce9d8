package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"finetune-orchestrator/internal/model"
)

// ProgressPublisher forwards remote training output to a durable queue.
type ProgressPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewProgressPublisher(conn *amqp.Connection, queueName string) *ProgressPublisher {
	return &ProgressPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *ProgressPublisher) Publish(ctx context.Context, entry model.TrainingLog) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if _, err := DeclareQueue(ch, p.queueName); err != nil {
		return err
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal training log payload failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
			MessageId:    entry.BatchID,
			Timestamp:    entry.CreatedAt,
		},
	); err != nil {
		return fmt.Errorf("publish training log failed: %w", err)
	}
	return nil
}

// DeclareQueue declares the durable queue shared by publisher and worker.
func DeclareQueue(ch *amqp.Channel, name string) (amqp.Queue, error) {
	q, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("declare queue %s failed: %w", name, err)
	}
	return q, nil
}
