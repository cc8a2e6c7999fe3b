package availability

import (
	"testing"
	"time"
)

func TestFreeHours_Basic(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	now := day.Add(-24 * time.Hour)
	booked := []time.Time{day.Add(10 * time.Hour), day.Add(15 * time.Hour)}

	free := FreeHours(day, Workday{OpenHour: 8, CloseHour: 19}, booked, now)
	// 11 workday hours minus the 2 booked ones.
	if len(free) != 9 {
		t.Fatalf("expected 9 free hours, got %d", len(free))
	}
	if !free[0].Equal(day.Add(8 * time.Hour)) {
		t.Fatalf("expected first slot 08:00, got %s", free[0].Format(time.RFC3339))
	}
	for _, slot := range free {
		if slot.Hour() == 10 || slot.Hour() == 15 {
			t.Fatalf("booked hour %d offered as free", slot.Hour())
		}
	}
}

func TestFreeHours_SkipsPast(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	// 13:00 exactly: the 13:00 slot is not strictly future.
	now := day.Add(13 * time.Hour)

	free := FreeHours(day, Workday{OpenHour: 8, CloseHour: 19}, nil, now)
	if len(free) != 5 {
		t.Fatalf("expected 5 free hours (14..18), got %d", len(free))
	}
	if !free[0].Equal(day.Add(14 * time.Hour)) {
		t.Fatalf("expected first slot 14:00, got %s", free[0].Format(time.RFC3339))
	}
}

func TestFreeHours_BookedInDifferentLocationStillMatches(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	now := day.Add(-time.Hour)
	// Same instant as 10:00 UTC, expressed in a fixed-offset zone.
	offset := time.FixedZone("UTC+2", 2*60*60)
	booked := []time.Time{time.Date(2026, 1, 28, 12, 0, 0, 0, offset)}

	free := FreeHours(day, Workday{OpenHour: 9, CloseHour: 12}, booked, now)
	if len(free) != 2 {
		t.Fatalf("expected 2 free hours, got %d", len(free))
	}
	for _, slot := range free {
		if slot.Hour() == 10 {
			t.Fatal("10:00 is booked via another location and must not be offered")
		}
	}
}

func TestFreeHours_DegenerateWorkday(t *testing.T) {
	day := time.Date(2026, 1, 28, 0, 0, 0, 0, time.UTC)
	if free := FreeHours(day, Workday{OpenHour: 19, CloseHour: 8}, nil, day); free != nil {
		t.Fatalf("expected no slots for inverted workday, got %v", free)
	}
}
