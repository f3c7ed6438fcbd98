package worker

import "errors"

// ErrStopped marks work abandoned because the pool began shutting down.
// Workers treat it as a quiet exit rather than a job failure.
var ErrStopped = errors.New("worker pool stopped")
