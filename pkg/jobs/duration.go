package jobs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// durationPattern matches one or more digits followed by exactly one unit
// character: seconds, minutes, hours, days, or weeks.
var durationPattern = regexp.MustCompile(`^(\d+)([smhdw])$`)

// Millisecond factors per duration unit.
const (
	millisPerSecond int64 = 1000
	millisPerMinute int64 = 60 * millisPerSecond
	millisPerHour   int64 = 60 * millisPerMinute
	millisPerDay    int64 = 24 * millisPerHour
	millisPerWeek   int64 = 7 * millisPerDay
)

var unitMillis = map[string]int64{
	"s": millisPerSecond,
	"m": millisPerMinute,
	"h": millisPerHour,
	"d": millisPerDay,
	"w": millisPerWeek,
}

// IsDurationString reports whether v is a string of the form "<digits><unit>"
// with a unit in {s, m, h, d, w}.
func IsDurationString(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return durationPattern.MatchString(s)
}

// ParseDelay converts a delay value to milliseconds. Duration strings such as
// "30s" or "5m" multiply the numeric prefix by the unit factor; plain numbers
// are treated as seconds. Anything else is an invalid delay format.
func ParseDelay(v any) (int64, error) {
	switch value := v.(type) {
	case string:
		match := durationPattern.FindStringSubmatch(value)
		if match == nil {
			return 0, jobsError(ErrInvalidArgument, fmt.Sprintf("invalid delay format: %q", value))
		}
		n, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return 0, jobsError(ErrInvalidArgument, fmt.Sprintf("invalid delay format: %q", value))
		}
		return n * unitMillis[match[2]], nil
	case int:
		return int64(value) * millisPerSecond, nil
	case int32:
		return int64(value) * millisPerSecond, nil
	case int64:
		return value * millisPerSecond, nil
	case float64:
		return int64(value * float64(millisPerSecond)), nil
	case nil:
		return 0, nil
	default:
		return 0, jobsError(ErrInvalidArgument, fmt.Sprintf("invalid delay format: %T", v))
	}
}

// FormatDuration renders milliseconds using the largest unit whose factor
// exactly divides ms, falling back to seconds.
func FormatDuration(ms int64) string {
	switch {
	case ms >= millisPerWeek && ms%millisPerWeek == 0:
		return strconv.FormatInt(ms/millisPerWeek, 10) + "w"
	case ms >= millisPerDay && ms%millisPerDay == 0:
		return strconv.FormatInt(ms/millisPerDay, 10) + "d"
	case ms >= millisPerHour && ms%millisPerHour == 0:
		return strconv.FormatInt(ms/millisPerHour, 10) + "h"
	case ms >= millisPerMinute && ms%millisPerMinute == 0:
		return strconv.FormatInt(ms/millisPerMinute, 10) + "m"
	default:
		return strconv.FormatInt(ms/millisPerSecond, 10) + "s"
	}
}

// NewJobID returns a globally unique job identifier. The "job-" prefix keeps
// ids self-describing in logs and guarantees a separator character.
func NewJobID() string {
	return "job-" + strings.ToLower(uuid.NewString())
}
