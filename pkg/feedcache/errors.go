package feedcache

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates there is no usable value for a key: it was
// never fetched, or it is stale beyond the grace window, and a refresh
// failed. Callers treat this as "unknown", never as a fatal error.
var ErrUnavailable = errors.New("feedcache: value unavailable")

// RefreshError carries the fetch failure behind an ErrUnavailable.
type RefreshError struct {
	Feed string
	Key  string
	Err  error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("%s: %s %q: %v", ErrUnavailable, e.Feed, e.Key, e.Err)
}

func (e *RefreshError) Unwrap() []error { return []error{ErrUnavailable, e.Err} }
