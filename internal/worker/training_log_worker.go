package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"finetune-orchestrator/internal/model"
	"finetune-orchestrator/internal/platform/rabbitmq"
)

type TrainingLogStore interface {
	Create(ctx context.Context, entry *model.TrainingLog) error
}

// TrainingLogWorker drains the progress queue into the training log table.
type TrainingLogWorker struct {
	conn      *amqp.Connection
	store     TrainingLogStore
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTrainingLogWorker(conn *amqp.Connection, store TrainingLogStore, queueName string) *TrainingLogWorker {
	return &TrainingLogWorker{
		conn:      conn,
		store:     store,
		queueName: queueName,
	}
}

func (w *TrainingLogWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if _, err := rabbitmq.DeclareQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(32, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()
		slog.Info("training log worker started", "queue", w.queueName)

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					slog.Warn("training log deliveries closed", "queue", w.queueName)
					return
				}
				w.handle(workerCtx, d)
			}
		}
	}()

	return nil
}

// handle acks persisted entries. Undecodable payloads are dropped, store
// failures are requeued once.
func (w *TrainingLogWorker) handle(ctx context.Context, d amqp.Delivery) {
	var entry model.TrainingLog
	if err := json.Unmarshal(d.Body, &entry); err != nil {
		slog.Warn("decode training log failed", "error", err)
		_ = d.Nack(false, false)
		return
	}
	entry.ID = 0

	if err := w.store.Create(ctx, &entry); err != nil {
		slog.Error("persist training log failed", "batchId", entry.BatchID, "error", err)
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func (w *TrainingLogWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
