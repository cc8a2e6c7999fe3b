package availability

import "time"

// Workday bounds the bookable hours of a day: slots start at OpenHour and
// the last one starts the hour before CloseHour.
type Workday struct {
	OpenHour  int
	CloseHour int
}

// FreeHours returns the hour boundaries on day (any time within the target
// day, in the caller's location) that are inside the workday, strictly in
// the future, and not occupied.
func FreeHours(day time.Time, wd Workday, booked []time.Time, now time.Time) []time.Time {
	if wd.CloseHour <= wd.OpenHour {
		return nil
	}

	// Key by Unix seconds: time.Time values from the database and from
	// time.Date differ in location and monotonic clock.
	occupied := make(map[int64]struct{}, len(booked))
	for _, b := range booked {
		occupied[b.Unix()] = struct{}{}
	}

	var free []time.Time
	for h := wd.OpenHour; h < wd.CloseHour; h++ {
		slot := time.Date(day.Year(), day.Month(), day.Day(), h, 0, 0, 0, day.Location())
		if !slot.After(now) {
			continue
		}
		if _, ok := occupied[slot.Unix()]; ok {
			continue
		}
		free = append(free, slot)
	}
	return free
}
