package scheduling

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hourbook/hourbook/services/booking-service/internal/availability"
	"github.com/hourbook/hourbook/services/booking-service/internal/directory"
	"github.com/hourbook/hourbook/services/booking-service/internal/model"
)

type fakeDirectory struct {
	actors map[string]directory.Actor
	err    error
}

func (f *fakeDirectory) FindActor(_ context.Context, id string) (directory.Actor, bool, error) {
	if f.err != nil {
		return directory.Actor{}, false, f.err
	}
	a, ok := f.actors[id]
	return a, ok, nil
}

type fakeStore struct {
	appointments map[string]model.Detail
	insertErr    error
	cancelErr    error
	inserted     []model.Appointment
	canceled     []string
	booked       []time.Time
}

func (f *fakeStore) Insert(_ context.Context, appt *model.Appointment) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	appt.CreatedAt = time.Now()
	f.inserted = append(f.inserted, *appt)
	return nil
}

func (f *fakeStore) FindDetail(_ context.Context, id string) (model.Detail, error) {
	d, ok := f.appointments[id]
	if !ok {
		return model.Detail{}, ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) ListActive(_ context.Context, clientID string, page, pageSize int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, d := range f.appointments {
		if d.ClientID == clientID && d.CanceledAt == nil {
			out = append(out, d.Appointment)
		}
	}
	return out, nil
}

func (f *fakeStore) Cancel(_ context.Context, id string, _ time.Time) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeStore) ListBookedHours(_ context.Context, _ string, _, _ time.Time) ([]time.Time, error) {
	return f.booked, nil
}

type fakeAvailability struct {
	free bool
	err  error
}

func (f *fakeAvailability) IsFree(_ context.Context, _ string, _ time.Time) (bool, error) {
	return f.free, f.err
}

type fakeSink struct {
	contents []string
	users    []string
	err      error
}

func (f *fakeSink) Create(_ context.Context, userID, content string) error {
	if f.err != nil {
		return f.err
	}
	f.users = append(f.users, userID)
	f.contents = append(f.contents, content)
	return nil
}

type queuedJob struct {
	jobKey      string
	aggregateID string
	payload     any
}

type fakeQueue struct {
	jobs []queuedJob
	err  error
}

func (f *fakeQueue) Add(_ context.Context, jobKey, aggregateID string, payload any) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, queuedJob{jobKey: jobKey, aggregateID: aggregateID, payload: payload})
	return nil
}

type fixture struct {
	directory *fakeDirectory
	store     *fakeStore
	avail     *fakeAvailability
	sink      *fakeSink
	queue     *fakeQueue
	now       time.Time
	service   *Service
}

func newFixture() *fixture {
	f := &fixture{
		directory: &fakeDirectory{actors: map[string]directory.Actor{
			"barber": {ID: "barber", Name: "Hugo Silva", Email: "hugo@example.com", IsProvider: true},
			"alice":  {ID: "alice", Name: "Alice Doe", Email: "alice@example.com"},
		}},
		store: &fakeStore{appointments: map[string]model.Detail{}},
		avail: &fakeAvailability{free: true},
		sink:  &fakeSink{},
		queue: &fakeQueue{},
		now:   time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}
	f.service = NewService(Deps{
		Directory:    f.directory,
		Store:        f.store,
		Availability: f.avail,
		Sink:         f.sink,
		Queue:        f.queue,
		Workday:      availability.Workday{OpenHour: 8, CloseHour: 19},
		Now:          func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) withAppointment(id string, scheduledAt time.Time, canceledAt *time.Time) {
	f.store.appointments[id] = model.Detail{
		Appointment: model.Appointment{
			ID:          id,
			ClientID:    "alice",
			ProviderID:  "barber",
			ScheduledAt: scheduledAt,
			RequestedAt: scheduledAt.Add(25 * time.Minute),
			CanceledAt:  canceledAt,
		},
		ClientName:    "Alice Doe",
		ProviderName:  "Hugo Silva",
		ProviderEmail: "hugo@example.com",
	}
}

func TestBook_TruncatesToHourAndKeepsRequestedAt(t *testing.T) {
	f := newFixture()
	requestedAt := time.Date(2026, 8, 28, 14, 25, 42, 0, time.UTC)

	appt, err := f.service.Book(context.Background(), "alice", "barber", requestedAt)
	if err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	want := time.Date(2026, 8, 28, 14, 0, 0, 0, time.UTC)
	if !appt.ScheduledAt.Equal(want) {
		t.Fatalf("expected slot %s, got %s", want, appt.ScheduledAt)
	}
	if !appt.RequestedAt.Equal(requestedAt) {
		t.Fatalf("expected requested_at preserved, got %s", appt.RequestedAt)
	}
	if len(f.store.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(f.store.inserted))
	}
}

func TestBook_UnknownOrNonProviderTarget(t *testing.T) {
	f := newFixture()
	future := f.now.Add(4 * time.Hour)

	if _, err := f.service.Book(context.Background(), "alice", "nobody", future); !errors.Is(err, ErrNotAProvider) {
		t.Fatalf("expected ErrNotAProvider for unknown id, got %v", err)
	}
	// A real actor that is not a provider is rejected the same way.
	if _, err := f.service.Book(context.Background(), "barber", "alice", future); !errors.Is(err, ErrNotAProvider) {
		t.Fatalf("expected ErrNotAProvider for plain client, got %v", err)
	}
	if len(f.store.inserted) != 0 {
		t.Fatal("no insert expected")
	}
}

func TestBook_PastOrCurrentHourRejected(t *testing.T) {
	f := newFixture()

	// now is exactly 10:00; a request for 10:59 truncates to 10:00, which is
	// not strictly future.
	if _, err := f.service.Book(context.Background(), "alice", "barber", f.now.Add(59*time.Minute)); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate for current hour, got %v", err)
	}
	if _, err := f.service.Book(context.Background(), "alice", "barber", f.now.Add(-time.Second)); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate for past time, got %v", err)
	}
	if _, err := f.service.Book(context.Background(), "alice", "barber", f.now.Add(time.Hour)); err != nil {
		t.Fatalf("next hour boundary should book, got %v", err)
	}
}

func TestBook_SlotTaken(t *testing.T) {
	f := newFixture()
	f.avail.free = false

	_, err := f.service.Book(context.Background(), "alice", "barber", f.now.Add(3*time.Hour))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if len(f.sink.contents) != 0 || len(f.queue.jobs) != 0 {
		t.Fatal("no side effects expected on rejected booking")
	}
}

func TestBook_InsertRaceMapsToSlotUnavailable(t *testing.T) {
	f := newFixture()
	// The availability check passed but the unique index rejected the insert.
	f.avail.free = true
	f.store.insertErr = ErrSlotUnavailable

	_, err := f.service.Book(context.Background(), "alice", "barber", f.now.Add(3*time.Hour))
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable from insert race, got %v", err)
	}
}

func TestBook_NotifiesProviderWithNameAndDate(t *testing.T) {
	f := newFixture()
	requestedAt := time.Date(2026, 8, 31, 9, 30, 0, 0, time.UTC)

	if _, err := f.service.Book(context.Background(), "alice", "barber", requestedAt); err != nil {
		t.Fatalf("Book failed: %v", err)
	}
	if len(f.sink.contents) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.sink.contents))
	}
	if f.sink.users[0] != "barber" {
		t.Fatalf("notification should target the provider, got %s", f.sink.users[0])
	}
	content := f.sink.contents[0]
	if !strings.Contains(content, "Alice Doe") {
		t.Fatalf("notification should carry the client name: %q", content)
	}
	if !strings.Contains(content, "Monday, August 31, 2026 at 09:30") {
		t.Fatalf("notification should carry the requested time: %q", content)
	}
}

func TestBook_NotificationFailureDoesNotFailBooking(t *testing.T) {
	f := newFixture()
	f.sink.err = errors.New("notifications down")

	if _, err := f.service.Book(context.Background(), "alice", "barber", f.now.Add(3*time.Hour)); err != nil {
		t.Fatalf("booking must survive a notification failure: %v", err)
	}
	if len(f.store.inserted) != 1 {
		t.Fatalf("expected the booking to be stored")
	}
}

func TestCancel_HappyPathEnqueuesMailJob(t *testing.T) {
	f := newFixture()
	f.withAppointment("appt-1", f.now.Add(3*time.Hour), nil)

	detail, err := f.service.Cancel(context.Background(), "alice", "appt-1")
	if err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if detail.CanceledAt == nil || !detail.CanceledAt.Equal(f.now) {
		t.Fatalf("expected canceled_at = now, got %v", detail.CanceledAt)
	}
	if len(f.store.canceled) != 1 || f.store.canceled[0] != "appt-1" {
		t.Fatalf("expected store cancel of appt-1, got %v", f.store.canceled)
	}
	if len(f.queue.jobs) != 1 {
		t.Fatalf("expected exactly 1 job, got %d", len(f.queue.jobs))
	}
	q := f.queue.jobs[0]
	if q.jobKey != JobKeyCancellationMail {
		t.Fatalf("unexpected job key %q", q.jobKey)
	}
	job, ok := q.payload.(CancellationMailJob)
	if !ok {
		t.Fatalf("unexpected payload type %T", q.payload)
	}
	if job.ProviderEmail != "hugo@example.com" || job.ProviderName != "Hugo Silva" || job.ClientName != "Alice Doe" {
		t.Fatalf("job snapshot incomplete: %+v", job)
	}
	if !job.CanceledAt.Equal(f.now) {
		t.Fatalf("job should carry the cancellation time, got %s", job.CanceledAt)
	}
}

func TestCancel_DeadlineBoundary(t *testing.T) {
	f := newFixture()
	// Exactly two hours of lead time is still allowed.
	f.withAppointment("at-limit", f.now.Add(2*time.Hour), nil)
	if _, err := f.service.Cancel(context.Background(), "alice", "at-limit"); err != nil {
		t.Fatalf("cancel at exactly 2h should succeed: %v", err)
	}

	f.withAppointment("too-late", f.now.Add(2*time.Hour-time.Minute), nil)
	_, err := f.service.Cancel(context.Background(), "alice", "too-late")
	if !errors.Is(err, ErrTooLateToCancel) {
		t.Fatalf("expected ErrTooLateToCancel, got %v", err)
	}
	// The rejected cancel must leave no trace: one cancel, one job, both
	// from the first appointment.
	if len(f.store.canceled) != 1 || len(f.queue.jobs) != 1 {
		t.Fatalf("late cancel should have no side effects: canceled=%v jobs=%d", f.store.canceled, len(f.queue.jobs))
	}
}

func TestCancel_OnlyBookingClientMayCancel(t *testing.T) {
	f := newFixture()
	f.withAppointment("appt-1", f.now.Add(5*time.Hour), nil)

	// Even the appointment's own provider is forbidden.
	if _, err := f.service.Cancel(context.Background(), "barber", "appt-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for provider, got %v", err)
	}
	if _, err := f.service.Cancel(context.Background(), "mallory", "appt-1"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for stranger, got %v", err)
	}
	if len(f.queue.jobs) != 0 {
		t.Fatal("no job expected")
	}
}

func TestCancel_MissingAndAlreadyCanceled(t *testing.T) {
	f := newFixture()
	canceledAt := f.now.Add(-time.Hour)
	f.withAppointment("gone", f.now.Add(5*time.Hour), &canceledAt)

	if _, err := f.service.Cancel(context.Background(), "alice", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := f.service.Cancel(context.Background(), "alice", "gone"); !errors.Is(err, ErrAlreadyCanceled) {
		t.Fatalf("expected ErrAlreadyCanceled, got %v", err)
	}
}

func TestCancel_EnqueueFailureSurfaces(t *testing.T) {
	f := newFixture()
	f.withAppointment("appt-1", f.now.Add(5*time.Hour), nil)
	f.queue.err = errors.New("outbox down")

	_, err := f.service.Cancel(context.Background(), "alice", "appt-1")
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}
	if !strings.Contains(err.Error(), "enqueue cancellation mail") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAvailableHours_RequiresProvider(t *testing.T) {
	f := newFixture()
	if _, err := f.service.AvailableHours(context.Background(), "alice", f.now); !errors.Is(err, ErrNotAProvider) {
		t.Fatalf("expected ErrNotAProvider, got %v", err)
	}
}

func TestAvailableHours_SkipsBookedAndPast(t *testing.T) {
	f := newFixture()
	day := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	f.store.booked = []time.Time{day.Add(14 * time.Hour)}

	hours, err := f.service.AvailableHours(context.Background(), "barber", day)
	if err != nil {
		t.Fatalf("AvailableHours failed: %v", err)
	}
	// Workday 8..19, now = 10:00: 08:00, 09:00, 10:00 are not strictly
	// future and 14:00 is booked, leaving 11..18 minus 14.
	if len(hours) != 7 {
		t.Fatalf("expected 7 free hours, got %d (%v)", len(hours), hours)
	}
	for _, h := range hours {
		if h.Hour() == 14 {
			t.Fatal("booked hour 14:00 should not be offered")
		}
		if !h.After(f.now) {
			t.Fatalf("offered hour %s is not in the future", h)
		}
	}
}
