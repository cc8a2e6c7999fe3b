package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hourbook/hourbook/libs/db"
	"github.com/hourbook/hourbook/services/booking-service/internal/outbox"
)

// Queue hands self-contained job payloads to the asynchronous pipeline.
// Add is durable: the payload is committed as an outbox row before it
// returns, and the outbox publisher plus the courier's inbox take it from
// there. Once Add returns nil the job will eventually run; the caller never
// waits for, or learns about, its completion.
type Queue struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewQueue(pool *db.Pool, outboxRepo *outbox.Repository) *Queue {
	return &Queue{pool: pool, outbox: outboxRepo}
}

// Add enqueues payload under jobKey (the Kafka topic the worker side
// consumes). aggregateID keys the partition so jobs for one appointment
// stay ordered.
func (q *Queue) Add(ctx context.Context, jobKey, aggregateID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal job payload: %w", err)
	}

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := q.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   aggregateID,
		EventType:     jobKey,
		Payload:       body,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
