package mqtt

import "errors"

// ErrNotConnected is returned when a command is attempted while the
// transport session is down.
var ErrNotConnected = errors.New("mqtt connector not connected")
