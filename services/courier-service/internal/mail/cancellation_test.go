package mail

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestCancellation_DecodeAndCompose(t *testing.T) {
	payload := `{
		"appointment_id": "appt-1",
		"client_name": "Alice Doe",
		"provider_name": "Hugo Silva",
		"provider_email": "hugo@example.com",
		"scheduled_at": "2026-08-31T14:00:00Z",
		"requested_at": "2026-08-31T14:25:00Z",
		"canceled_at": "2026-08-28T10:00:00Z"
	}`

	var notice Cancellation
	if err := json.Unmarshal([]byte(payload), &notice); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !notice.Valid() {
		t.Fatal("expected a valid notice")
	}

	subject, body := notice.Compose()
	if !strings.Contains(subject, "Monday, August 31, 2026 at 14:00") {
		t.Fatalf("subject should carry the slot time: %q", subject)
	}
	if !strings.Contains(body, "Hugo Silva") || !strings.Contains(body, "Alice Doe") {
		t.Fatalf("body should name both parties: %q", body)
	}
	if !strings.Contains(body, "Friday, August 28, 2026 at 10:00") {
		t.Fatalf("body should carry the cancellation time: %q", body)
	}
}

func TestCancellation_Valid(t *testing.T) {
	base := Cancellation{
		AppointmentID: "appt-1",
		ProviderEmail: "hugo@example.com",
		ScheduledAt:   time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC),
	}
	if !base.Valid() {
		t.Fatal("expected valid")
	}

	missing := base
	missing.ProviderEmail = ""
	if missing.Valid() {
		t.Fatal("missing recipient must be invalid")
	}
	missing = base
	missing.AppointmentID = ""
	if missing.Valid() {
		t.Fatal("missing appointment id must be invalid")
	}
	missing = base
	missing.ScheduledAt = time.Time{}
	if missing.Valid() {
		t.Fatal("zero slot must be invalid")
	}
}
