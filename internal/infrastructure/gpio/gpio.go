// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"errors"
	"time"
)

// ErrUnsupported is returned by Open on platforms without a GPIO character
// device.
var ErrUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// ErrLineBusy is returned when a line is requested twice.
var ErrLineBusy = errors.New("gpio: line already requested")

// DefaultChip is the first GPIO chip on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// Edge selects which transitions raise events on an input line.
type Edge int

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

// Event is a single edge observed on an input line.
type Event struct {
	Pin    int
	Rising bool
	Time   time.Time
}

// Handler receives edge events. It runs on the GPIO event goroutine and
// must not block.
type Handler func(Event)

// InputConfig describes an input line request.
type InputConfig struct {
	Edge     Edge
	PullDown bool
	PullUp   bool
	Debounce time.Duration
	Handler  Handler
}

// Chip hands out lines of one GPIO chip.
type Chip interface {
	RequestInput(pin int, cfg InputConfig) (InputLine, error)
	RequestOutput(pin int, initial int) (OutputLine, error)
	Close() error
}

// InputLine is a requested input.
type InputLine interface {
	// Value returns the raw line level, 0 or 1.
	Value() (int, error)
	Close() error
}

// OutputLine is a requested output.
type OutputLine interface {
	SetValue(v int) error
	Close() error
}
