package webpost

import "errors"

// ErrCancelled is the canonical error returned when an operation observes
// context cancellation at one of its I/O boundaries, per spec.md §7.
var ErrCancelled = errors.New("eosmetrics: cancelled")
