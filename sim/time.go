package sim

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// Time is an absolute simulated time or a relative delay, in picoseconds.
type Time uint64

// Simulated time units.
const (
	ZeroTime    Time = 0
	Picosecond  Time = 1
	Nanosecond       = 1000 * Picosecond
	Microsecond      = 1000 * Nanosecond
	Millisecond      = 1000 * Microsecond
	Second           = 1000 * Millisecond
)

// ErrInvalidTime indicates that a textual time value could not be parsed.
var ErrInvalidTime = errors.New("invalid simulated time")

var timeUnits = []struct {
	name string
	unit Time
}{
	{"s", Second},
	{"ms", Millisecond},
	{"us", Microsecond},
	{"ns", Nanosecond},
	{"ps", Picosecond},
}

// String renders the time with the largest unit that represents it exactly, e.g. "10 ns".
func (t Time) String() string {
	if t == 0 {
		return "0 s"
	}

	for _, u := range timeUnits {
		if t%u.unit == 0 {
			return strconv.FormatUint(uint64(t/u.unit), 10) + " " + u.name
		}
	}

	return strconv.FormatUint(uint64(t), 10) + " ps"
}

// MarshalText implements encoding.TextMarshaler.
func (t Time) MarshalText() ([]byte, error) {
	return []byte(strings.ReplaceAll(t.String(), " ", "")), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, accepting values such as "10ns" or "15 ps".
func (t *Time) UnmarshalText(text []byte) error {
	v, err := ParseTime(string(text))
	if err != nil {
		return err
	}
	*t = v

	return nil
}

// ParseTime parses a number followed by one of the units s, ms, us, ns, ps.
// A bare number is interpreted as nanoseconds.
func ParseTime(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidTime)
	}

	numEnd := 0
	for numEnd < len(s) && s[numEnd] >= '0' && s[numEnd] <= '9' {
		numEnd++
	}
	if numEnd == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}

	n, err := strconv.ParseUint(s[:numEnd], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidTime, s, err)
	}

	unitName := strings.TrimSpace(s[numEnd:])
	if unitName == "" {
		return Time(n) * Nanosecond, nil
	}

	for _, u := range timeUnits {
		if u.name == unitName {
			return Time(n) * u.unit, nil
		}
	}

	return 0, fmt.Errorf("%w: unknown unit %q", ErrInvalidTime, unitName)
}

// DelayFunc produces a timing annotation each time it is called.
type DelayFunc func() Time

// Fixed returns a DelayFunc that always yields d.
func Fixed(d Time) DelayFunc {
	return func() Time { return d }
}

// Uniform returns a DelayFunc yielding a whole number of nanoseconds in [0, maxNS).
// It returns a zero delay when maxNS is zero.
func Uniform(rng *rand.Rand, maxNS uint64) DelayFunc {
	return func() Time {
		if maxNS == 0 {
			return 0
		}
		return Time(rng.Uint64N(maxNS)) * Nanosecond
	}
}
