package racing

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseLapTime converts a "M:SS.mmm" or "MM:SS.mmm" string to milliseconds.
// An empty string is "no time recorded" and returns ok=false with no error.
// The fraction may be 1-3 digits and is right-padded, so "1:23.4" is 83400ms.
func ParseLapTime(s string) (ms int, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, nil
	}

	colon := strings.IndexByte(s, ':')
	dot := strings.IndexByte(s, '.')
	if colon <= 0 || dot <= colon {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	minStr := s[:colon]
	secStr := s[colon+1 : dot]
	fracStr := s[dot+1:]

	if len(minStr) > 2 || len(secStr) != 2 || len(fracStr) < 1 || len(fracStr) > 3 {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	// Atoi alone would accept sign characters, so "0:-1.500" must be caught
	// before conversion.
	if !allDigits(minStr) || !allDigits(secStr) || !allDigits(fracStr) {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	minutes, err := strconv.Atoi(minStr)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	seconds, err := strconv.Atoi(secStr)
	if err != nil || seconds > 59 {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	frac, err := strconv.Atoi(fracStr)
	if err != nil {
		return 0, false, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	// Right-pad to milliseconds: ".4" is 400ms, ".04" is 40ms.
	for i := len(fracStr); i < 3; i++ {
		frac *= 10
	}

	return minutes*60000 + seconds*1000 + frac, true, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FormatLapTime is the inverse of ParseLapTime, zero-padding seconds to 2
// digits and milliseconds to 3.
func FormatLapTime(ms int) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, (ms%60000)/1000, ms%1000)
}

// SumCourseTimes totals the times for every required course. It returns
// complete=false if any required course is missing or has no time yet, and
// an error if a stored time string does not parse.
func SumCourseTimes(times CourseTimes, required []string) (total int, complete bool, err error) {
	for _, code := range required {
		raw, present := times[code]
		if !present {
			return 0, false, nil
		}
		ms, ok, err := ParseLapTime(raw)
		if err != nil {
			return 0, false, err
		}
		if !ok {
			return 0, false, nil
		}
		total += ms
	}
	return total, true, nil
}
