// Package period parses human-written task periods into whole seconds.
//
// Supported forms:
//   - Bare seconds: "5", "90"
//   - Go duration: "90s", "1m30s", "2h" (must be a whole number of seconds)
//   - HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
//
// Optional prefixes "every:" and "interval:" are accepted and ignored.
package period

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Source describes which syntax a period was written in.
type Source string

const (
	SourceSeconds  Source = "seconds"
	SourceDuration Source = "duration"
	SourceHHMM     Source = "hhmm"
)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// Parse returns the period in seconds.
func Parse(raw string) (int, error) {
	secs, _, err := ParseSource(raw)
	return secs, err
}

// ParseSource is Parse that also reports the syntax used.
func ParseSource(raw string) (int, Source, error) {
	s := strings.TrimSpace(raw)
	low := strings.ToLower(s)
	for _, p := range []string{"every:", "interval:"} {
		if strings.HasPrefix(low, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	if s == "" {
		return 0, "", fmt.Errorf("period required")
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, "", fmt.Errorf("period must be > 0")
		}
		return n, SourceSeconds, nil
	}

	if reHHMM.MatchString(s) {
		d, err := parseHHMMDuration(s)
		if err != nil {
			return 0, "", err
		}
		secs, err := wholeSeconds(d)
		return secs, SourceHHMM, err
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, "", fmt.Errorf("invalid period %q (use seconds like '5', HH:MM like '02:30', or duration like '55m')", raw)
	}
	secs, err := wholeSeconds(d)
	return secs, SourceDuration, err
}

// Duration converts a period in seconds back to a time.Duration.
func Duration(secs int) time.Duration { return time.Duration(secs) * time.Second }

// Format renders secs in the shortest Go duration form ("1m30s").
func Format(secs int) string { return Duration(secs).String() }

func wholeSeconds(d time.Duration) (int, error) {
	if d <= 0 {
		return 0, fmt.Errorf("period must be > 0")
	}
	if d%time.Second != 0 {
		return 0, fmt.Errorf("period %s is not a whole number of seconds", d)
	}
	secs := int64(d / time.Second)
	if secs > math.MaxInt32 {
		return 0, fmt.Errorf("period %s is too large", d)
	}
	return int(secs), nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}
