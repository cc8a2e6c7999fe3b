package mail

import (
	"fmt"
	"time"
)

// whenLayout matches the booking side's notification formatting so the two
// surfaces read the same.
const whenLayout = "Monday, January 2, 2006 at 15:04"

// Cancellation is the job payload the booking side enqueues. It carries
// everything the mail needs, so composing never reads appointment state.
type Cancellation struct {
	AppointmentID string    `json:"appointment_id"`
	ClientName    string    `json:"client_name"`
	ProviderName  string    `json:"provider_name"`
	ProviderEmail string    `json:"provider_email"`
	ScheduledAt   time.Time `json:"scheduled_at"`
	RequestedAt   time.Time `json:"requested_at"`
	CanceledAt    time.Time `json:"canceled_at"`
}

func (c Cancellation) Valid() bool {
	return c.AppointmentID != "" && c.ProviderEmail != "" && !c.ScheduledAt.IsZero()
}

// Compose renders the provider-facing cancellation notice.
func (c Cancellation) Compose() (subject, body string) {
	subject = fmt.Sprintf("Appointment canceled: %s", c.ScheduledAt.Format(whenLayout))
	body = fmt.Sprintf(
		"Hello %s,\n\nYour appointment with %s on %s has been canceled by the client on %s.\n\nThe slot is open for booking again.\n",
		c.ProviderName,
		c.ClientName,
		c.ScheduledAt.Format(whenLayout),
		c.CanceledAt.Format(whenLayout),
	)
	return subject, body
}
