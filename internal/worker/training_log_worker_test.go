package worker

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"finetune-orchestrator/internal/model"
)

type fakeAcknowledger struct {
	acks    int
	nacks   int
	requeue []bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error {
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacks++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *fakeAcknowledger) Reject(uint64, bool) error {
	return nil
}

type fakeStore struct {
	err     error
	entries []model.TrainingLog
}

func (s *fakeStore) Create(_ context.Context, entry *model.TrainingLog) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, *entry)
	return nil
}

func TestHandlePersistsEntry(t *testing.T) {
	store := &fakeStore{}
	ack := &fakeAcknowledger{}
	w := NewTrainingLogWorker(nil, store, "q")

	w.handle(context.Background(), amqp.Delivery{
		Acknowledger: ack,
		Body:         []byte(`{"id": 99, "batch_id": "b-1", "stream": "stdout", "line": "epoch 1\n"}`),
	})

	if ack.acks != 1 || ack.nacks != 0 {
		t.Fatalf("expected one ack, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(store.entries))
	}
	got := store.entries[0]
	if got.ID != 0 || got.BatchID != "b-1" || got.Stream != model.StreamStdout || got.Line != "epoch 1\n" {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestHandleRejects(t *testing.T) {
	for name, testcase := range map[string]struct {
		body        string
		storeErr    error
		redelivered bool
		wantRequeue bool
	}{
		"malformed payload": {body: `{`},
		"store failure first delivery": {
			body: `{"batch_id": "b"}`, storeErr: errors.New("db down"), wantRequeue: true,
		},
		"store failure redelivered": {
			body: `{"batch_id": "b"}`, storeErr: errors.New("db down"), redelivered: true,
		},
	} {
		t.Run(name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			w := NewTrainingLogWorker(nil, &fakeStore{err: testcase.storeErr}, "q")
			w.handle(context.Background(), amqp.Delivery{
				Acknowledger: ack,
				Body:         []byte(testcase.body),
				Redelivered:  testcase.redelivered,
			})
			if ack.acks != 0 || ack.nacks != 1 {
				t.Fatalf("expected one nack, got acks=%d nacks=%d", ack.acks, ack.nacks)
			}
			if ack.requeue[0] != testcase.wantRequeue {
				t.Fatalf("requeue mismatch: got %v want %v", ack.requeue[0], testcase.wantRequeue)
			}
		})
	}
}
