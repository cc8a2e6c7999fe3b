package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hourbook/hourbook/services/booking-service/internal/availability"
	"github.com/hourbook/hourbook/services/booking-service/internal/directory"
	"github.com/hourbook/hourbook/services/booking-service/internal/model"
)

// CancelWindow is the minimum lead time before a slot during which
// cancellation is still permitted. Exactly two hours is allowed.
const CancelWindow = 2 * time.Hour

// PageSize is the fixed page size of active-appointment listings.
const PageSize = 20

const (
	// JobKeyCancellationMail names the durable job (and Kafka topic) the
	// courier consumes to deliver cancellation emails.
	JobKeyCancellationMail = "booking.cancellation.mail.v1"
	// EventAppointmentBooked announces successful bookings to downstream
	// consumers. Emission is best-effort.
	EventAppointmentBooked = "booking.appointment.booked.v1"
)

// Collaborator contracts. The service holds no state of its own beyond
// these handles, so tests substitute any of them freely.

type Directory interface {
	FindActor(ctx context.Context, id string) (directory.Actor, bool, error)
}

type Store interface {
	Insert(ctx context.Context, appt *model.Appointment) error
	FindDetail(ctx context.Context, id string) (model.Detail, error)
	ListActive(ctx context.Context, clientID string, page, pageSize int) ([]model.Appointment, error)
	Cancel(ctx context.Context, id string, at time.Time) error
	ListBookedHours(ctx context.Context, providerID string, from, to time.Time) ([]time.Time, error)
}

type Availability interface {
	IsFree(ctx context.Context, providerID string, slot time.Time) (bool, error)
}

type Sink interface {
	Create(ctx context.Context, userID, content string) error
}

type Queue interface {
	Add(ctx context.Context, jobKey, aggregateID string, payload any) error
}

// CancellationMailJob is the self-contained snapshot the mail worker
// receives. Captured at cancellation time and passed by value so the worker
// never re-reads state that may have changed since.
type CancellationMailJob struct {
	AppointmentID string    `json:"appointment_id"`
	ClientName    string    `json:"client_name"`
	ProviderName  string    `json:"provider_name"`
	ProviderEmail string    `json:"provider_email"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	RequestedAt   time.Time `json:"requested_at"`
	CanceledAt    time.Time `json:"canceled_at"`
}

type Deps struct {
	Directory    Directory
	Store        Store
	Availability Availability
	Sink         Sink
	Queue        Queue
	Logger       *slog.Logger
	Workday      availability.Workday
	Now          func() time.Time
}

// Service orchestrates booking and cancellation.
type Service struct {
	directory    Directory
	store        Store
	availability Availability
	sink         Sink
	queue        Queue
	logger       *slog.Logger
	workday      availability.Workday
	now          func() time.Time
}

func NewService(deps Deps) *Service {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Workday.CloseHour <= deps.Workday.OpenHour {
		deps.Workday = availability.Workday{OpenHour: 8, CloseHour: 19}
	}
	return &Service{
		directory:    deps.Directory,
		store:        deps.Store,
		availability: deps.Availability,
		sink:         deps.Sink,
		queue:        deps.Queue,
		logger:       deps.Logger,
		workday:      deps.Workday,
		now:          deps.Now,
	}
}

// Book schedules an appointment for clientID with providerID at the hour
// containing requestedAt. The stored record keeps the caller's original
// timestamp for display while the hour boundary governs the slot.
func (s *Service) Book(ctx context.Context, clientID, providerID string, requestedAt time.Time) (model.Appointment, error) {
	provider, ok, err := s.directory.FindActor(ctx, providerID)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("resolve provider: %w", err)
	}
	if !ok || !provider.IsProvider {
		return model.Appointment{}, ErrNotAProvider
	}

	slot := model.StartOfHour(requestedAt)
	if !slot.After(s.now()) {
		return model.Appointment{}, ErrPastDate
	}

	free, err := s.availability.IsFree(ctx, provider.ID, slot)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("availability check: %w", err)
	}
	if !free {
		return model.Appointment{}, ErrSlotUnavailable
	}

	appt := model.Appointment{
		ID:          uuid.NewString(),
		ClientID:    clientID,
		ProviderID:  provider.ID,
		ScheduledAt: slot,
		RequestedAt: requestedAt,
	}
	if err := s.store.Insert(ctx, &appt); err != nil {
		// A unique-index violation means another booking won the slot
		// between the check and the insert; the constraint is authoritative.
		if errors.Is(err, ErrSlotUnavailable) {
			return model.Appointment{}, ErrSlotUnavailable
		}
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}

	s.notifyProvider(ctx, provider.ID, clientID, appt)
	s.announceBooked(ctx, appt)

	return appt, nil
}

// notifyProvider writes the in-app notification. Best-effort: the booking
// already exists, so failures are logged and swallowed.
func (s *Service) notifyProvider(ctx context.Context, providerID, clientID string, appt model.Appointment) {
	client, ok, err := s.directory.FindActor(ctx, clientID)
	if err != nil || !ok {
		s.logger.Warn("notification skipped: client lookup failed",
			"appointment_id", appt.ID, "client_id", clientID, "err", err)
		return
	}
	content := fmt.Sprintf("New appointment from %s on %s", client.Name, FormatWhen(appt.RequestedAt))
	if err := s.sink.Create(ctx, providerID, content); err != nil {
		s.logger.Warn("notification create failed; booking unaffected",
			"appointment_id", appt.ID, "provider_id", providerID, "err", err)
	}
}

// announceBooked emits the booked event. Best-effort, like the in-app
// notification: downstream consumers are informational only.
func (s *Service) announceBooked(ctx context.Context, appt model.Appointment) {
	payload := map[string]any{
		"appointment_id": appt.ID,
		"client_id":      appt.ClientID,
		"provider_id":    appt.ProviderID,
		"scheduled_at":   appt.ScheduledAt.UTC().Format(time.RFC3339),
		"requested_at":   appt.RequestedAt.UTC().Format(time.RFC3339),
	}
	if err := s.queue.Add(ctx, EventAppointmentBooked, appt.ID, payload); err != nil {
		s.logger.Warn("booked event enqueue failed", "appointment_id", appt.ID, "err", err)
	}
}

// Cancel performs the one-way Active -> Canceled transition and durably
// enqueues the cancellation mail job. The enqueue is part of the contract:
// if it fails the error surfaces even though the row is already canceled,
// so the caller never sees a success without a queued mail.
func (s *Service) Cancel(ctx context.Context, clientID, appointmentID string) (model.Detail, error) {
	detail, err := s.store.FindDetail(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.Detail{}, ErrNotFound
		}
		return model.Detail{}, fmt.Errorf("load appointment: %w", err)
	}

	// Ownership first: the provider learning an appointment exists is fine,
	// but only the booking client may cancel it.
	if detail.ClientID != clientID {
		return model.Detail{}, ErrForbidden
	}
	if detail.CanceledAt != nil {
		return model.Detail{}, ErrAlreadyCanceled
	}

	now := s.now()
	if detail.ScheduledAt.Sub(now) < CancelWindow {
		return model.Detail{}, ErrTooLateToCancel
	}

	if err := s.store.Cancel(ctx, detail.ID, now); err != nil {
		if errors.Is(err, ErrAlreadyCanceled) {
			return model.Detail{}, ErrAlreadyCanceled
		}
		return model.Detail{}, fmt.Errorf("cancel appointment: %w", err)
	}
	canceledAt := now
	detail.CanceledAt = &canceledAt

	job := CancellationMailJob{
		AppointmentID: detail.ID,
		ClientName:    detail.ClientName,
		ProviderName:  detail.ProviderName,
		ProviderEmail: detail.ProviderEmail,
		ScheduledAt:   detail.ScheduledAt,
		RequestedAt:   detail.RequestedAt,
		CanceledAt:    canceledAt,
	}
	if err := s.queue.Add(ctx, JobKeyCancellationMail, detail.ID, job); err != nil {
		return model.Detail{}, fmt.Errorf("enqueue cancellation mail: %w", err)
	}

	return detail, nil
}

// ListActive returns a page of the client's upcoming appointments, soonest
// first.
func (s *Service) ListActive(ctx context.Context, clientID string, page int) ([]model.Appointment, error) {
	if page < 1 {
		page = 1
	}
	return s.store.ListActive(ctx, clientID, page, PageSize)
}

// AvailableHours lists the bookable hour boundaries of a provider for the
// day containing `day`.
func (s *Service) AvailableHours(ctx context.Context, providerID string, day time.Time) ([]time.Time, error) {
	provider, ok, err := s.directory.FindActor(ctx, providerID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider: %w", err)
	}
	if !ok || !provider.IsProvider {
		return nil, ErrNotAProvider
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	booked, err := s.store.ListBookedHours(ctx, provider.ID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list booked hours: %w", err)
	}
	return availability.FreeHours(dayStart, s.workday, booked, s.now()), nil
}
