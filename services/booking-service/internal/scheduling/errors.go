package scheduling

import "errors"

// Booking and cancellation failures callers are expected to branch on.
// Storage implementations return ErrSlotUnavailable and ErrNotFound directly
// so a lost insert race and a missing row surface as the same kinds the
// pre-checks produce.
var (
	ErrNotAProvider    = errors.New("target actor is not a provider")
	ErrPastDate        = errors.New("requested slot is in the past")
	ErrSlotUnavailable = errors.New("slot is already booked")
	ErrNotFound        = errors.New("appointment not found")
	ErrForbidden       = errors.New("only the booking client may cancel")
	ErrTooLateToCancel = errors.New("appointments can only be canceled two hours in advance")
	ErrAlreadyCanceled = errors.New("appointment is already canceled")
)
