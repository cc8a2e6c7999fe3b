package model

import "time"

// Appointment is a one-hour booking of a provider by a client.
//
// ScheduledAt is the hour boundary the slot occupies; it drives uniqueness,
// availability, ordering, and the cancellation deadline. RequestedAt is the
// timestamp the client originally asked for and is only rendered back to
// humans — the two differ whenever the request was not hour-aligned.
type Appointment struct {
	ID          string
	ClientID    string
	ProviderID  string
	ScheduledAt time.Time
	RequestedAt time.Time
	CanceledAt  *time.Time
	CreatedAt   time.Time
}

// Detail is an appointment joined with the actor fields the cancellation
// pipeline snapshots: it is captured once and passed by value so the mail
// worker never re-reads mutable state.
type Detail struct {
	Appointment
	ClientName    string
	ProviderName  string
	ProviderEmail string
}

type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
)

// Status makes the one-way Active -> Canceled state machine explicit even
// though persistence uses a nullable timestamp.
func (a Appointment) Status() Status {
	if a.CanceledAt != nil {
		return StatusCanceled
	}
	return StatusActive
}

// StartOfHour truncates t to its containing hour boundary, keeping the
// location.
func StartOfHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
