package forecast

import (
	"strings"
	"time"
)

// DateLayout is the accepted order date format
const DateLayout = "2006-01-02"

// CalendarFeatures are the features derived from a single order date
type CalendarFeatures struct {
	Month int `json:"month"`
	Year  int `json:"year"`
	// DayOfWeek counts from Monday=0 to Sunday=6
	DayOfWeek int `json:"day_of_week"`
	Season    int `json:"season"`
}

// ParseDate parses an order date in YYYY-MM-DD form
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, InvalidDate(value)
	}
	return t, nil
}

// DeriveCalendar extracts the calendar features of t
func DeriveCalendar(t time.Time) CalendarFeatures {
	month := int(t.Month())
	return CalendarFeatures{
		Month:     month,
		Year:      t.Year(),
		DayOfWeek: (int(t.Weekday()) + 6) % 7,
		Season:    Season(month),
	}
}

// Season maps a month to its meteorological season:
// spring=1 (3-5), summer=2 (6-8), autumn=3 (9-11), winter=4 (12, 1, 2).
// Months outside 1..12 return 0.
func Season(month int) int {
	switch month {
	case 3, 4, 5:
		return 1
	case 6, 7, 8:
		return 2
	case 9, 10, 11:
		return 3
	case 12, 1, 2:
		return 4
	default:
		return 0
	}
}
