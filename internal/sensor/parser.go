package sensor

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoNumericValue is returned when a reply carries no number.
var ErrNoNumericValue = errors.New("no numeric value in response")

var numberRe = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`)

// Parse extracts the first decimal number (optionally signed, optionally in
// exponential notation) found anywhere in raw.
func Parse(raw string) (float64, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return 0, fmt.Errorf("%w: empty response", ErrNoNumericValue)
	}
	m := numberRe.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("%w: %q", ErrNoNumericValue, raw)
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		// Only reachable for out of range exponents such as 1e999.
		return 0, fmt.Errorf("%w: %q: %v", ErrNoNumericValue, m, err)
	}
	return v, nil
}
