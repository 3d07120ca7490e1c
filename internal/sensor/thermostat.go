package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/gray-logic-node/internal/instance"
)

// Thermostat modes.
const (
	ModeHeat = "heat"
	ModeCool = "cool"
)

// driftReadings is how many consecutive readings moving against the
// group's action count as the action not having taken effect.
const driftReadings = 3

// Thermostat votes from temperatures received over MQTT. The rule is the
// setpoint.
//
// In heat mode it votes True below setpoint-tolerance, False above
// setpoint+tolerance and abstains in between. Cool mode is the mirror
// image. Without a reading it abstains.
type Thermostat struct {
	topic     string
	field     string
	qos       byte
	mode      string
	tolerance float64
	min, max  float64

	sub       Subscriber
	telemetry ReadingWriter

	// Written by the message handler.
	mu      sync.Mutex
	pending []float64

	temperature *float64
	previous    *float64
	against     int
}

// NewThermostat builds a thermostat: topic (required), field (default
// "temperature"), qos, mode (heat or cool), tolerance (default 1) and
// min_rule/max_rule (default 5 and 35).
func NewThermostat(p instance.Params, sub Subscriber, telemetry ReadingWriter) (*Thermostat, error) {
	if sub == nil {
		return nil, fmt.Errorf("%w: %s needs mqtt", ErrNoTransport, p.Type)
	}
	t := &Thermostat{sub: sub, telemetry: telemetry}

	var err error
	if t.topic, err = p.RequiredString("topic"); err != nil {
		return nil, err
	}
	if t.field, err = p.String("field", "temperature"); err != nil {
		return nil, err
	}
	qos, err := p.Int("qos", 0)
	if err != nil {
		return nil, err
	}
	if qos < 0 || qos > 2 {
		return nil, fmt.Errorf("%w: qos must be 0, 1 or 2", instance.ErrInvalidParams)
	}
	t.qos = byte(qos)
	if t.mode, err = p.String("mode", ModeHeat); err != nil {
		return nil, err
	}
	if t.mode != ModeHeat && t.mode != ModeCool {
		return nil, fmt.Errorf("%w: mode must be heat or cool, got %q", instance.ErrInvalidParams, t.mode)
	}
	if t.tolerance, err = p.Float("tolerance", 1); err != nil {
		return nil, err
	}
	if t.tolerance < 0 {
		return nil, fmt.Errorf("%w: tolerance must not be negative", instance.ErrInvalidParams)
	}
	if t.min, err = p.Float("min_rule", 5); err != nil {
		return nil, err
	}
	if t.max, err = p.Float("max_rule", 35); err != nil {
		return nil, err
	}
	if t.min > t.max {
		return nil, fmt.Errorf("%w: min_rule above max_rule", instance.ErrInvalidParams)
	}
	return t, nil
}

func (t *Thermostat) ValidateRule(rule any) (any, error) {
	f, ok := instance.FloatRule(rule)
	if !ok {
		return nil, fmt.Errorf("%w: setpoint %v is not a number", instance.ErrInvalidRule, rule)
	}
	if f < t.min || f > t.max {
		return nil, fmt.Errorf("%w: setpoint %v outside [%v, %v]", instance.ErrInvalidRule, f, t.min, t.max)
	}
	return f, nil
}

func (t *Thermostat) ConditionMet(s *instance.Sensor) instance.Tristate {
	setpoint, ok := instance.FloatRule(s.CurrentRule())
	if t.temperature == nil || !ok {
		return instance.None
	}
	temp := *t.temperature
	low, high := setpoint-t.tolerance, setpoint+t.tolerance

	switch {
	case temp < low:
		return instance.FromBool(t.mode == ModeHeat)
	case temp > high:
		return instance.FromBool(t.mode == ModeCool)
	}
	return instance.None
}

// Start subscribes to the temperature topic.
func (t *Thermostat) Start(_ context.Context, s *instance.Sensor) error {
	handler := func(_ string, payload []byte) error {
		v, err := t.parse(payload)
		if err != nil {
			return err
		}
		t.mu.Lock()
		t.pending = append(t.pending, v)
		t.mu.Unlock()
		s.Scheduler().Create(0, func() { t.drain(s) }, s.Name()+"_event")
		return nil
	}
	if err := t.sub.Subscribe(t.topic, t.qos, handler); err != nil {
		return fmt.Errorf("subscribing to %s: %w", t.topic, err)
	}
	return nil
}

// Stop unsubscribes.
func (t *Thermostat) Stop() error {
	return t.sub.Unsubscribe(t.topic)
}

// parse accepts a bare number or a JSON object holding the configured
// field, as published by zigbee2mqtt and Tasmota.
func (t *Thermostat) parse(payload []byte) (float64, error) {
	text := strings.TrimSpace(string(payload))
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		if f, ok := instance.FloatRule(v); ok {
			return f, nil
		}
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadReading, text)
	}
	f, ok := instance.FloatRule(doc[t.field])
	if !ok {
		return 0, fmt.Errorf("%w: field %q missing or not a number", ErrBadReading, t.field)
	}
	return f, nil
}

func (t *Thermostat) drain(s *instance.Sensor) {
	t.mu.Lock()
	readings := t.pending
	t.pending = nil
	t.mu.Unlock()

	for _, v := range readings {
		t.record(s, v)
	}
	if len(readings) > 0 {
		s.Refresh()
	}
}

// Record applies one reading. Message handlers go through the scheduler;
// tests and the API may call it directly under the command lock.
func (t *Thermostat) Record(s *instance.Sensor, v float64) {
	t.record(s, v)
	s.Refresh()
}

func (t *Thermostat) record(s *instance.Sensor, v float64) {
	reading := v
	t.previous, t.temperature = t.temperature, &reading
	if t.telemetry != nil {
		t.telemetry.WriteSensorReading(s.Name(), "temperature", v, s.Now())
	}
	t.audit(s)
}

// audit re-sends the group's action when the temperature keeps moving the
// wrong way after it was applied.
func (t *Thermostat) audit(s *instance.Sensor) {
	g := s.Group()
	if g == nil || t.previous == nil || !s.Enabled() {
		t.against = 0
		return
	}
	on, ok := g.State().Bool()
	if !ok {
		t.against = 0
		return
	}

	// Heating on or cooling off should warm the room.
	wantRise := on == (t.mode == ModeHeat)
	delta := *t.temperature - *t.previous
	if (wantRise && delta < 0) || (!wantRise && delta > 0) {
		t.against++
	} else {
		t.against = 0
	}
	if t.against < driftReadings {
		return
	}

	t.against = 0
	s.Logger().Warn("temperature drifting against group action",
		"sensor", s.Name(),
		"group", g.Name(),
		"temperature", *t.temperature,
		"action_on", on,
	)
	if err := g.Resend(); err != nil {
		s.Logger().Warn("drift correction incomplete", "group", g.Name(), "error", err)
	}
}

// PostAction starts a fresh drift audit after the group applied an action.
func (t *Thermostat) PostAction(*instance.Sensor) {
	t.against = 0
}

func (t *Thermostat) Attributes() map[string]any {
	attrs := map[string]any{
		"topic":       t.topic,
		"mode":        t.mode,
		"tolerance":   t.tolerance,
		"min_rule":    t.min,
		"max_rule":    t.max,
		"temperature": nil,
	}
	if t.temperature != nil {
		attrs["temperature"] = *t.temperature
	}
	return attrs
}
