package device

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/gpio"
	"github.com/nerrad567/gray-logic-node/internal/instance"
)

// Relay is an on/off device commanded over MQTT. It has no rule grammar
// beyond enabled and disabled.
type Relay struct {
	topic      string
	qos        byte
	payloadOn  string
	payloadOff string
	pub        Publisher
}

// NewRelay builds a relay: topic (required), qos, payload_on (default
// "ON") and payload_off (default "OFF").
func NewRelay(p instance.Params, pub Publisher) (*Relay, error) {
	topic, qos, err := commandTarget(p, pub)
	if err != nil {
		return nil, err
	}
	on, err := p.String("payload_on", "ON")
	if err != nil {
		return nil, err
	}
	off, err := p.String("payload_off", "OFF")
	if err != nil {
		return nil, err
	}
	return &Relay{topic: topic, qos: qos, payloadOn: on, payloadOff: off, pub: pub}, nil
}

func (*Relay) Ruleless() {}

func (*Relay) ValidateRule(rule any) (any, error) {
	return nil, fmt.Errorf("%w: relay accepts only enabled or disabled, got %v", instance.ErrInvalidRule, rule)
}

func (r *Relay) Send(_ *instance.Device, on bool) error {
	payload := r.payloadOff
	if on {
		payload = r.payloadOn
	}
	return r.pub.Publish(r.topic, []byte(payload), r.qos, false)
}

func (r *Relay) Attributes() map[string]any {
	return map[string]any{"topic": r.topic}
}

// GPIORelay switches a relay wired to a GPIO output line.
type GPIORelay struct {
	chip      gpio.Chip
	pin       int
	activeLow bool
	line      gpio.OutputLine
}

// NewGPIORelay builds a GPIO relay: pin (required) and active_low.
func NewGPIORelay(p instance.Params, chip gpio.Chip) (*GPIORelay, error) {
	if chip == nil {
		return nil, fmt.Errorf("%w: %s needs gpio", ErrNoTransport, p.Type)
	}
	pin, err := p.RequiredInt("pin")
	if err != nil {
		return nil, err
	}
	if pin < 0 {
		return nil, fmt.Errorf("%w: pin must not be negative", instance.ErrInvalidParams)
	}
	activeLow, err := p.Bool("active_low", false)
	if err != nil {
		return nil, err
	}
	return &GPIORelay{chip: chip, pin: pin, activeLow: activeLow}, nil
}

func (*GPIORelay) Ruleless() {}

func (*GPIORelay) ValidateRule(rule any) (any, error) {
	return nil, fmt.Errorf("%w: gpio-relay accepts only enabled or disabled, got %v", instance.ErrInvalidRule, rule)
}

func (g *GPIORelay) level(on bool) int {
	if on != g.activeLow {
		return 1
	}
	return 0
}

// Start claims the output line at the device's recorded state, off when
// it has none.
func (g *GPIORelay) Start(_ context.Context, d *instance.Device) error {
	line, err := g.chip.RequestOutput(g.pin, g.level(d.State() == instance.True))
	if err != nil {
		return fmt.Errorf("requesting output pin %d: %w", g.pin, err)
	}
	g.line = line
	d.Logger().Debug("gpio relay started", "device", d.Name(), "pin", g.pin)
	return nil
}

// Stop releases the line.
func (g *GPIORelay) Stop() error {
	if g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	return err
}

func (g *GPIORelay) Send(d *instance.Device, on bool) error {
	if g.line == nil {
		return fmt.Errorf("%w: %s", ErrNotStarted, d.Name())
	}
	return g.line.SetValue(g.level(on))
}

func (g *GPIORelay) Attributes() map[string]any {
	return map[string]any{"pin": g.pin, "active_low": g.activeLow}
}
