package auth

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var shorthandDuration = regexp.MustCompile(`^(\d+)([dwh])$`)

// ParseExpirationDuration turns a token lifetime setting into an absolute
// expiry. Supported forms:
//   - "never" or "" - no expiry (nil)
//   - "30d", "2w", "24h" - days, weeks or hours from now
//   - any Go duration such as "90m" or "2h30m"
//   - "mm/dd/yyyy" or "mm/dd/yyyy HH:MM" - a fixed future date (UTC)
func ParseExpirationDuration(expiresIn string) (*time.Time, error) {
	if expiresIn == "" || expiresIn == "never" {
		return nil, nil
	}

	if dur, err := time.ParseDuration(expiresIn); err == nil {
		t := time.Now().Add(dur)
		return &t, nil
	}

	for _, format := range []string{"01/02/2006 15:04", "01/02/2006"} {
		if t, err := time.Parse(format, expiresIn); err == nil {
			if t.Before(time.Now()) {
				return nil, fmt.Errorf("expiration date must be in the future: %s", expiresIn)
			}
			return &t, nil
		}
	}

	matches := shorthandDuration.FindStringSubmatch(expiresIn)
	if len(matches) != 3 {
		return nil, fmt.Errorf("invalid expiration format: %s (use 'never', '30d', '2w', '24h', '12/25/2026', or any Go duration like '30m')", expiresIn)
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return nil, fmt.Errorf("invalid number in expiration: %s", expiresIn)
	}

	unit := time.Hour
	switch matches[2] {
	case "d":
		unit = 24 * time.Hour
	case "w":
		unit = 7 * 24 * time.Hour
	}

	t := time.Now().Add(time.Duration(num) * unit)
	return &t, nil
}
