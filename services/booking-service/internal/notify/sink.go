package notify

import (
	"context"
	"time"

	"github.com/hourbook/hourbook/libs/db"
)

// Notification is an in-app message for a provider. The read flag is
// toggled by the (out-of-scope) UI layer, never here.
type Notification struct {
	ID        int64
	UserID    string
	Content   string
	Read      bool
	CreatedAt time.Time
}

// Sink appends notifications. Booking treats creation as best-effort: a
// failed insert is logged by the caller and never fails the booking.
type Sink struct {
	pool *db.Pool
}

func NewSink(pool *db.Pool) *Sink {
	return &Sink{pool: pool}
}

func (s *Sink) Create(ctx context.Context, userID, content string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, content)
		VALUES ($1, $2)
	`, userID, content)
	return err
}

func (s *Sink) ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id::text, content, read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Content, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
