// Package pin defines the suspendable PIN-acquisition contract shared by
// the registrator, authenticator and signer. A PinProvider maps directly
// onto "given a callback that consumes a string, invoke it once with the
// PIN" — an implementation backed by a channel or one-shot delivery is the
// natural fit (spec.md §9).
package pin

import "context"

// Provider acquires a PIN from the host application (a UI prompt, typically).
// Consume must be invoked exactly once with the digits the end user entered,
// or not at all to signal cancellation. Provider suspends the caller until
// Consume is invoked or ctx is done.
type Provider func(ctx context.Context, consume func(pin string)) error

// Errors returned while turning a raw PinProvider call into a validated PIN.
var (
	ErrCancelled = errorString("pin: acquisition was cancelled")
)

type errorString string

func (e errorString) Error() string { return string(e) }

// Acquire runs provider and returns whatever PIN it produced, or
// ErrCancelled if Consume was never invoked (or invoked with an empty
// string).
func Acquire(ctx context.Context, provider Provider) (string, error) {
	var got string
	var consumed bool
	err := provider(ctx, func(p string) {
		got = p
		consumed = true
	})
	if err != nil {
		return "", err
	}
	if !consumed || got == "" {
		return "", ErrCancelled
	}
	return got, nil
}
