package storage

import (
	"context"

	"github.com/hourbook/hourbook/libs/db"
)

// Delivery is the audit record of one mail attempt outcome. Written on
// terminal states only (sent, or dead-lettered), not per retry.
type Delivery struct {
	AppointmentID string
	Recipient     string
	Subject       string
	Status        string
	ErrorReason   string
}

const (
	DeliveryStatusSent   = "sent"
	DeliveryStatusFailed = "failed"
)

type DeliveriesRepository struct {
	pool *db.Pool
}

func NewDeliveriesRepository(pool *db.Pool) *DeliveriesRepository {
	return &DeliveriesRepository{pool: pool}
}

func (r *DeliveriesRepository) Insert(ctx context.Context, d Delivery) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mail_deliveries (appointment_id, recipient, subject, status, error_reason)
		VALUES ($1, $2, $3, $4, $5)
	`, d.AppointmentID, d.Recipient, d.Subject, d.Status, d.ErrorReason)
	return err
}
