package scheduling

import "time"

// whenLayout renders timestamps for notification and email text. Display
// only: comparisons always use the time values themselves.
const whenLayout = "Monday, January 2, 2006 at 15:04"

func FormatWhen(t time.Time) string {
	return t.Format(whenLayout)
}
