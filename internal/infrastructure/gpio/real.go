//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// RealChip drives lines on a Linux GPIO character device.
type RealChip struct {
	chip *gpiocdev.Chip
}

// Open opens the named chip, e.g. "gpiochip0".
func Open(name string) (*RealChip, error) {
	if name == "" {
		name = DefaultChip
	}
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &RealChip{chip: chip}, nil
}

// RequestInput requests pin as an input, optionally with edge detection.
func (c *RealChip) RequestInput(pin int, cfg InputConfig) (InputLine, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	switch {
	case cfg.PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	case cfg.PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	}
	switch cfg.Edge {
	case EdgeRising:
		opts = append(opts, gpiocdev.WithRisingEdge)
	case EdgeFalling:
		opts = append(opts, gpiocdev.WithFallingEdge)
	case EdgeBoth:
		opts = append(opts, gpiocdev.WithBothEdges)
	}
	if cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(cfg.Debounce))
	}
	if cfg.Handler != nil {
		handler := cfg.Handler
		opts = append(opts, gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			handler(Event{
				Pin:    evt.Offset,
				Rising: evt.Type == gpiocdev.LineEventRisingEdge,
				Time:   time.Now(),
			})
		}))
	}

	line, err := c.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	return &realInput{line: line}, nil
}

// RequestOutput requests pin as an output driven to initial.
func (c *RealChip) RequestOutput(pin int, initial int) (OutputLine, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(initial))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &realOutput{line: line}, nil
}

// Close releases the chip.
func (c *RealChip) Close() error {
	if c.chip == nil {
		return nil
	}
	if err := c.chip.Close(); err != nil {
		return fmt.Errorf("close chip: %w", err)
	}
	return nil
}

type realInput struct {
	line *gpiocdev.Line
}

func (r *realInput) Value() (int, error) {
	v, err := r.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read pin %d: %w", r.line.Offset(), err)
	}
	return v, nil
}

func (r *realInput) Close() error {
	return r.line.Close()
}

type realOutput struct {
	line *gpiocdev.Line
}

func (r *realOutput) SetValue(v int) error {
	if err := r.line.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", r.line.Offset(), err)
	}
	return nil
}

// Close drives the line low and reconfigures it as a pulled-down input,
// matching the Raspberry Pi boot default, before releasing it.
func (r *realOutput) Close() error {
	var errs []error
	if err := r.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("reset pin: %w", err))
	}
	if err := r.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
	}
	if err := r.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin: %w", err))
	}
	return errors.Join(errs...)
}
