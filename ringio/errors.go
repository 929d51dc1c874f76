package ringio

import "errors"

// Error kinds surfaced to callers. TargetIO errors from the underlying
// target are propagated wrapped around ErrTargetIO so callers can still
// errors.Is against the specific failure while also matching the kind.
var (
	// ErrTimeout means a target read or write exceeded its configured bound.
	ErrTimeout = errors.New("ringio: operation timed out")

	// ErrTargetIO means the underlying target reported an I/O failure.
	ErrTargetIO = errors.New("ringio: target I/O error")

	// ErrNotRegistered means a Registry lookup found no entry for the id.
	ErrNotRegistered = errors.New("ringio: id not registered")

	// ErrTypeMismatch means a Registry lookup found an entry whose target
	// type does not match the type requested by the caller.
	ErrTypeMismatch = errors.New("ringio: target type mismatch")

	// ErrInternal means an unexpected worker-pool failure occurred, such as
	// a dispatched task panicking.
	ErrInternal = errors.New("ringio: internal error")
)

// isTaggedRingError reports whether err already carries one of this
// package's sentinel kinds, so wrapping helpers don't double-wrap it.
func isTaggedRingError(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrInternal) || errors.Is(err, ErrTargetIO)
}
