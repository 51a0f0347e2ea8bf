package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MinutesPerDay is the wrap point of minutes-of-day arithmetic.
const MinutesPerDay = 24 * 60

// ErrInvalidClock is returned for clock text that cannot be parsed.
var ErrInvalidClock = errors.New("invalid clock time")

// ParseClock parses 24-hour "HH:MM" (or "HH:MM:SS", seconds ignored) into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

// Parse12Hour parses "h:mm AM" / "h:mm PM" into minutes since midnight.
func Parse12Hour(s string) (int, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	hm := strings.Split(fields[0], ":")
	if len(hm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(hm[0])
	if err != nil || h < 1 || h > 12 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(hm[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}

	switch strings.ToUpper(fields[1]) {
	case "AM":
		if h == 12 {
			h = 0
		}
	case "PM":
		if h != 12 {
			h += 12
		}
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return h*60 + m, nil
}

// Format12Hour renders minutes since midnight as "h:mm AM/PM", wrapping at 1440.
func Format12Hour(minutes int) string {
	minutes = Wrap(minutes)
	h := minutes / 60
	m := minutes % 60

	period := "AM"
	if h >= 12 {
		period = "PM"
	}
	switch {
	case h == 0:
		h = 12
	case h > 12:
		h -= 12
	}
	return fmt.Sprintf("%d:%02d %s", h, m, period)
}

// Wrap normalizes any minute count into [0, 1440).
func Wrap(minutes int) int {
	minutes %= MinutesPerDay
	if minutes < 0 {
		minutes += MinutesPerDay
	}
	return minutes
}
