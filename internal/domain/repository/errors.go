package repository

import "errors"

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// ErrContention signals a transient store-contention failure. Callers
// retry these transparently with backoff before surfacing a hard error.
var ErrContention = errors.New("store contention")
