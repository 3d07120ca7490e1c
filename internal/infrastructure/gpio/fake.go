package gpio

import (
	"fmt"
	"sync"
	"time"
)

// FakeChip is a test double that records requested lines and lets tests
// drive input edges and inspect output levels.
type FakeChip struct {
	mu      sync.Mutex
	inputs  map[int]*FakeInput
	outputs map[int]*FakeOutput

	// RequestError, if set, is returned by every request.
	RequestError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeChip returns an empty fake chip.
func NewFakeChip() *FakeChip {
	return &FakeChip{
		inputs:  make(map[int]*FakeInput),
		outputs: make(map[int]*FakeOutput),
	}
}

// RequestInput records an input request.
func (f *FakeChip) RequestInput(pin int, cfg InputConfig) (InputLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RequestError != nil {
		return nil, f.RequestError
	}
	if f.busy(pin) {
		return nil, fmt.Errorf("%w: pin %d", ErrLineBusy, pin)
	}
	in := &FakeInput{chip: f, pin: pin, cfg: cfg}
	f.inputs[pin] = in
	return in, nil
}

// RequestOutput records an output request.
func (f *FakeChip) RequestOutput(pin int, initial int) (OutputLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RequestError != nil {
		return nil, f.RequestError
	}
	if f.busy(pin) {
		return nil, fmt.Errorf("%w: pin %d", ErrLineBusy, pin)
	}
	out := &FakeOutput{chip: f, pin: pin, values: []int{initial}}
	f.outputs[pin] = out
	return out, nil
}

// Close marks the chip as closed.
func (f *FakeChip) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

func (f *FakeChip) busy(pin int) bool {
	_, in := f.inputs[pin]
	_, out := f.outputs[pin]
	return in || out
}

// Input returns the requested input on pin, or nil.
func (f *FakeChip) Input(pin int) *FakeInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs[pin]
}

// Output returns the requested output on pin, or nil.
func (f *FakeChip) Output(pin int) *FakeOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputs[pin]
}

// SetInput sets the level of pin and delivers an edge event when the level
// changed and the requested edge matches. It returns false if no input is
// requested on pin.
func (f *FakeChip) SetInput(pin int, level int) bool {
	in := f.Input(pin)
	if in == nil {
		return false
	}
	in.set(level)
	return true
}

// FakeInput is an input requested from a FakeChip.
type FakeInput struct {
	chip *FakeChip
	pin  int
	cfg  InputConfig

	mu     sync.Mutex
	level  int
	closed bool
}

// Config returns the request configuration.
func (i *FakeInput) Config() InputConfig { return i.cfg }

func (i *FakeInput) set(level int) {
	i.mu.Lock()
	if i.closed || i.level == level {
		i.mu.Unlock()
		return
	}
	i.level = level
	rising := level == 1
	handler := i.cfg.Handler
	edge := i.cfg.Edge
	i.mu.Unlock()

	if handler == nil {
		return
	}
	if edge == EdgeBoth || (edge == EdgeRising && rising) || (edge == EdgeFalling && !rising) {
		handler(Event{Pin: i.pin, Rising: rising, Time: time.Now()})
	}
}

// Value returns the current level.
func (i *FakeInput) Value() (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.level, nil
}

// Close releases the pin.
func (i *FakeInput) Close() error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()

	i.chip.mu.Lock()
	delete(i.chip.inputs, i.pin)
	i.chip.mu.Unlock()
	return nil
}

// FakeOutput is an output requested from a FakeChip.
type FakeOutput struct {
	chip *FakeChip
	pin  int

	mu     sync.Mutex
	values []int
	closed bool

	// WriteError, if set, is returned by SetValue.
	WriteError error
}

// SetValue records v.
func (o *FakeOutput) SetValue(v int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.WriteError != nil {
		return o.WriteError
	}
	o.values = append(o.values, v)
	return nil
}

// Level returns the last written level.
func (o *FakeOutput) Level() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.values[len(o.values)-1]
}

// Values returns every level written, starting with the initial one.
func (o *FakeOutput) Values() []int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]int(nil), o.values...)
}

// Closed reports whether the line was released.
func (o *FakeOutput) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// Close releases the pin.
func (o *FakeOutput) Close() error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()

	o.chip.mu.Lock()
	delete(o.chip.outputs, o.pin)
	o.chip.mu.Unlock()
	return nil
}
