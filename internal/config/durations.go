package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// durationField parses the duration at path. A bare integer is seconds, as
// with task periods; anything else is a Go duration. Empty or zero yields def.
func durationField(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	var d time.Duration
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		d = time.Duration(n) * time.Second
	} else if d, err = time.ParseDuration(s); err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must be >= 0, got %q", path, raw)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// secondsField is durationField for values the clock can only honor in whole
// seconds: the result is rounded up to the next second and is at least 1s.
func secondsField(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := durationField(path, raw, def)
	if err != nil {
		return 0, err
	}
	if r := d.Truncate(time.Second); r < d {
		d = r + time.Second
	}
	if d < time.Second {
		d = time.Second
	}
	return d, nil
}
