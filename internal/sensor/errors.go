package sensor

import "errors"

// Domain errors for the sensor package.
var (
	// ErrNoTransport is returned when a sensor type needs MQTT or GPIO and
	// the node was started without it.
	ErrNoTransport = errors.New("sensor: transport unavailable")

	// ErrBadReading is returned by message handlers for payloads that hold
	// no usable value.
	ErrBadReading = errors.New("sensor: unreadable payload")
)
