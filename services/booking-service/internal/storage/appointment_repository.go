package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hourbook/hourbook/libs/db"
	"github.com/hourbook/hourbook/services/booking-service/internal/model"
	"github.com/hourbook/hourbook/services/booking-service/internal/scheduling"
)

// AppointmentRepository owns appointment persistence. The appointments
// table carries a partial unique index on (provider_id, scheduled_at) WHERE
// canceled_at IS NULL: the application-level availability check is only a
// fast path, this index is what actually guarantees slot exclusivity under
// concurrent writers.
type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

// Insert creates the appointment row. A unique-index violation means another
// writer won the slot between check and insert and is reported as
// scheduling.ErrSlotUnavailable.
func (r *AppointmentRepository) Insert(ctx context.Context, appt *model.Appointment) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, client_id, provider_id, scheduled_at, requested_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, appt.ID, appt.ClientID, appt.ProviderID, appt.ScheduledAt, appt.RequestedAt).Scan(&appt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return scheduling.ErrSlotUnavailable
		}
		return err
	}
	return nil
}

// FindDetail loads the appointment with the client and provider fields the
// cancellation snapshot needs.
func (r *AppointmentRepository) FindDetail(ctx context.Context, id string) (model.Detail, error) {
	var d model.Detail
	var canceledAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT a.id::text, a.client_id::text, a.provider_id::text,
			a.scheduled_at, a.requested_at, a.canceled_at, a.created_at,
			c.name, p.name, p.email
		FROM appointments a
		JOIN actors c ON c.id = a.client_id
		JOIN actors p ON p.id = a.provider_id
		WHERE a.id = $1
	`, id).Scan(
		&d.ID,
		&d.ClientID,
		&d.ProviderID,
		&d.ScheduledAt,
		&d.RequestedAt,
		&canceledAt,
		&d.CreatedAt,
		&d.ClientName,
		&d.ProviderName,
		&d.ProviderEmail,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Detail{}, scheduling.ErrNotFound
	}
	if err != nil {
		return model.Detail{}, err
	}
	d.CanceledAt = canceledAt
	return d, nil
}

// SlotTaken reports whether an active appointment occupies the slot.
func (r *AppointmentRepository) SlotTaken(ctx context.Context, providerID string, slot time.Time) (bool, error) {
	var taken bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $1 AND scheduled_at = $2 AND canceled_at IS NULL
		)
	`, providerID, slot).Scan(&taken)
	return taken, err
}

// ListActive pages through a client's active appointments, soonest first.
func (r *AppointmentRepository) ListActive(ctx context.Context, clientID string, page, pageSize int) ([]model.Appointment, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, client_id::text, provider_id::text,
			scheduled_at, requested_at, canceled_at, created_at
		FROM appointments
		WHERE client_id = $1 AND canceled_at IS NULL
		ORDER BY scheduled_at ASC
		LIMIT $2 OFFSET $3
	`, clientID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		var canceledAt *time.Time
		if err := rows.Scan(
			&appt.ID,
			&appt.ClientID,
			&appt.ProviderID,
			&appt.ScheduledAt,
			&appt.RequestedAt,
			&canceledAt,
			&appt.CreatedAt,
		); err != nil {
			return nil, err
		}
		appt.CanceledAt = canceledAt
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// Cancel performs the one-way Active -> Canceled transition. The guard on
// canceled_at keeps a concurrent second cancel from moving the timestamp.
func (r *AppointmentRepository) Cancel(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET canceled_at = $2
		WHERE id = $1 AND canceled_at IS NULL
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return scheduling.ErrAlreadyCanceled
	}
	return nil
}

// ListBookedHours returns the occupied hour boundaries of a provider within
// [from, to), for the free-hours listing.
func (r *AppointmentRepository) ListBookedHours(ctx context.Context, providerID string, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_at
		FROM appointments
		WHERE provider_id = $1
			AND canceled_at IS NULL
			AND scheduled_at >= $2
			AND scheduled_at < $3
		ORDER BY scheduled_at ASC
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []time.Time
	for rows.Next() {
		var h time.Time
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return hours, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
