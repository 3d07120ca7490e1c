package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/gpio"
	"github.com/nerrad567/gray-logic-node/internal/instance"
)

// PIR is a motion sensor on a GPIO input.
//
// The rule is the reset delay in minutes. Motion votes True until the
// delay has passed since the last rising edge; a rule of 0 resets on the
// falling edge instead.
type PIR struct {
	chip gpio.Chip
	pin  int
	cfg  gpio.InputConfig
	line gpio.InputLine

	// Written by the edge handler.
	mu    sync.Mutex
	risen bool
	high  bool

	motion bool
}

// NewPIR builds a PIR sensor: pin (required), pull and debounce_ms.
func NewPIR(p instance.Params, chip gpio.Chip) (*PIR, error) {
	pin, cfg, err := inputParams(p, chip)
	if err != nil {
		return nil, err
	}
	return &PIR{chip: chip, pin: pin, cfg: cfg}, nil
}

func (*PIR) ValidateRule(rule any) (any, error) {
	f, ok := instance.FloatRule(rule)
	if !ok || f < 0 {
		return nil, fmt.Errorf("%w: reset delay must be minutes >= 0, got %v", instance.ErrInvalidRule, rule)
	}
	return f, nil
}

func (p *PIR) ConditionMet(*instance.Sensor) instance.Tristate {
	return instance.FromBool(p.motion)
}

// Start requests the input line.
func (p *PIR) Start(_ context.Context, s *instance.Sensor) error {
	cfg := p.cfg
	cfg.Handler = func(ev gpio.Event) { p.onEdge(s, ev) }
	line, err := p.chip.RequestInput(p.pin, cfg)
	if err != nil {
		return fmt.Errorf("requesting input pin %d: %w", p.pin, err)
	}
	p.line = line
	return nil
}

// Stop releases the input line.
func (p *PIR) Stop() error {
	if p.line == nil {
		return nil
	}
	err := p.line.Close()
	p.line = nil
	return err
}

// onEdge runs on the GPIO goroutine.
func (p *PIR) onEdge(s *instance.Sensor, ev gpio.Event) {
	p.mu.Lock()
	if ev.Rising {
		p.risen = true
	}
	p.high = ev.Rising
	p.mu.Unlock()
	s.Scheduler().Create(0, func() { p.drain(s) }, s.Name()+"_event")
}

func (p *PIR) drain(s *instance.Sensor) {
	p.mu.Lock()
	risen, high := p.risen, p.high
	p.risen = false
	p.mu.Unlock()

	if risen && s.Enabled() {
		p.detect(s)
	}
	// Falling edges clear motion even while disabled, so a re-enabled
	// sensor does not vote on a stale reading.
	if !high && p.motion && p.delay(s) == 0 {
		p.reset(s)
	}
}

// Trigger simulates motion.
func (p *PIR) Trigger(s *instance.Sensor) error {
	p.detect(s)
	return nil
}

func (p *PIR) detect(s *instance.Sensor) {
	p.motion = true
	if d := p.delay(s); d > 0 {
		s.Scheduler().Create(d, func() { p.reset(s) }, s.Name()+"_reset")
	}
	s.Logger().Debug("motion detected", "sensor", s.Name())
	s.Refresh()
}

func (p *PIR) reset(s *instance.Sensor) {
	if !p.motion {
		return
	}
	p.motion = false
	s.Refresh()
}

func (p *PIR) delay(s *instance.Sensor) time.Duration {
	minutes, ok := instance.FloatRule(s.CurrentRule())
	if !ok || minutes <= 0 {
		return 0
	}
	return time.Duration(minutes * float64(time.Minute))
}

func (p *PIR) Attributes() map[string]any {
	return map[string]any{"pin": p.pin, "motion": p.motion}
}

// Switch is a contact or wall switch on a GPIO input. High votes True,
// low votes False, reversed when invert is set.
type Switch struct {
	chip   gpio.Chip
	pin    int
	cfg    gpio.InputConfig
	invert bool
	line   gpio.InputLine

	mu   sync.Mutex
	high bool
}

// NewSwitch builds a switch sensor: pin (required), pull, debounce_ms and
// invert.
func NewSwitch(p instance.Params, chip gpio.Chip) (*Switch, error) {
	pin, cfg, err := inputParams(p, chip)
	if err != nil {
		return nil, err
	}
	invert, err := p.Bool("invert", false)
	if err != nil {
		return nil, err
	}
	return &Switch{chip: chip, pin: pin, cfg: cfg, invert: invert}, nil
}

func (*Switch) Ruleless() {}

func (*Switch) ValidateRule(rule any) (any, error) {
	return nil, fmt.Errorf("%w: switch accepts only enabled or disabled, got %v", instance.ErrInvalidRule, rule)
}

func (w *Switch) ConditionMet(*instance.Sensor) instance.Tristate {
	w.mu.Lock()
	defer w.mu.Unlock()
	return instance.FromBool(w.high != w.invert)
}

// Start requests the line and samples its level.
func (w *Switch) Start(_ context.Context, s *instance.Sensor) error {
	cfg := w.cfg
	cfg.Handler = func(ev gpio.Event) {
		w.mu.Lock()
		w.high = ev.Rising
		w.mu.Unlock()
		s.RequestRefresh()
	}
	line, err := w.chip.RequestInput(w.pin, cfg)
	if err != nil {
		return fmt.Errorf("requesting input pin %d: %w", w.pin, err)
	}
	level, err := line.Value()
	if err != nil {
		line.Close() //nolint:errcheck // the read error is returned
		return fmt.Errorf("reading pin %d: %w", w.pin, err)
	}
	w.mu.Lock()
	w.high = level == 1
	w.mu.Unlock()
	w.line = line
	return nil
}

// Stop releases the line.
func (w *Switch) Stop() error {
	if w.line == nil {
		return nil
	}
	err := w.line.Close()
	w.line = nil
	return err
}

func (w *Switch) Attributes() map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return map[string]any{"pin": w.pin, "level": w.high, "invert": w.invert}
}
