package dispense

import "errors"

// ErrBusy is returned when a command is already in flight for the box.
// This is a blocking guard, not a queue: the caller retries later.
var ErrBusy = errors.New("dispense command already in flight")

// ErrAckTimeout is returned when no acknowledgment is received before
// the timeout expires.
var ErrAckTimeout = errors.New("timeout waiting for dispense ack")

// ErrDispenseFailed is returned when the device acknowledged the
// command but reported a failure.
var ErrDispenseFailed = errors.New("device reported dispense failure")
