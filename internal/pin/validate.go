package pin

import (
	"errors"
	"strconv"
)

// ErrInvalidPin is returned by Validate when the PIN's length doesn't
// match the expected digit count, or it isn't a non-negative base-10
// integer.
var ErrInvalidPin = errors.New("pin: length mismatch or non-numeric")

// Validate checks raw against the expected digit length and parses it as a
// non-negative base-10 integer, per spec.md §4.4/§4.5's PIN guard.
func Validate(raw string, expectedLength int) (int, error) {
	if len(raw) != expectedLength {
		return 0, ErrInvalidPin
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, ErrInvalidPin
	}
	return n, nil
}
