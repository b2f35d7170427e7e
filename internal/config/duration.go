package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DurationValue reads a duration setting such as "5s" or "1m30s". A bare
// integer is taken as seconds. Empty or zero yields def. Negative or
// unparsable values are errors naming key.
func DurationValue(key, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		n, nerr := strconv.Atoi(s)
		if nerr != nil {
			return 0, fmt.Errorf("%s: %q is not a duration (e.g. 5s, 2m)", key, raw)
		}
		d = time.Duration(n) * time.Second
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("%s: %q is negative", key, raw)
	case d == 0:
		return def, nil
	}
	return d, nil
}
