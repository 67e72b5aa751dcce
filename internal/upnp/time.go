// ABOUTME: Transport time value formatting and parsing (H:MM:SS)
// ABOUTME: Used for Seek targets and position info fields
package upnp

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatDuration renders d as H:MM:SS, the shape AVTransport expects for
// REL_TIME seek targets. Negative durations clamp to zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// ParseDuration parses H:MM:SS with an optional fractional-seconds part,
// as found in TrackDuration and RelTime fields.
func ParseDuration(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed time %q", s)
	}

	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("malformed time %q", s)
	}

	sec := parts[2]
	var millis int
	if dot := strings.Index(sec, "."); dot >= 0 {
		frac := sec[dot+1:]
		sec = sec[:dot]
		if frac == "" {
			return 0, fmt.Errorf("malformed time %q", s)
		}
		if len(frac) > 3 {
			frac = frac[:3]
		}
		for len(frac) < 3 {
			frac += "0"
		}
		millis, err = strconv.Atoi(frac)
		if err != nil || millis < 0 {
			return 0, fmt.Errorf("malformed time %q", s)
		}
	}
	ss, err := strconv.Atoi(sec)
	if err != nil || ss < 0 || ss > 59 {
		return 0, fmt.Errorf("malformed time %q", s)
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(ss)*time.Second +
		time.Duration(millis)*time.Millisecond, nil
}
