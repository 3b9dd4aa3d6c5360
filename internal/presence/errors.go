package presence

import "errors"

// Sentinel errors for presence operations, checked with errors.Is().
var (
	// ErrScanUnavailable indicates the scan utility could not produce a
	// result (missing binary, timeout, non-zero exit). Distinct from an
	// empty scan: an unavailable scan says nothing about presence and
	// must not be treated as Absent.
	ErrScanUnavailable = errors.New("presence: scan unavailable")

	// ErrNoTarget indicates the monitor was created without a beacon
	// address to watch for.
	ErrNoTarget = errors.New("presence: no target beacon address configured")
)
