package device

import "errors"

// Domain errors for the device package.
var (
	// ErrNoTransport is returned when a device type needs MQTT or GPIO and
	// the node was started without it.
	ErrNoTransport = errors.New("device: transport unavailable")

	// ErrNotStarted is returned when a hardware-backed device is switched
	// before Start acquired its line.
	ErrNotStarted = errors.New("device: hardware not started")
)
