package instance

import (
	"context"
	"fmt"
)

// Sensor is a trigger instance: the shared state machine plus a
// SensorVariant that evaluates its condition.
type Sensor struct {
	Instance
	targets     []int
	targetNames []string
	variant     SensorVariant
}

// NewSensor builds a sensor from its declarative parameters. Target names
// are resolved to device slots when the sensor is added to a Graph.
func NewSensor(p Params, v SensorVariant, env Env) (*Sensor, error) {
	base, err := newInstance(KindSensor, p, v, env)
	if err != nil {
		return nil, err
	}
	s := &Sensor{
		Instance:    base,
		variant:     v,
		targetNames: append([]string(nil), p.Targets...),
	}

	s.applied = func(previous any) {
		if hook, ok := v.(SensorRuleHook); ok {
			hook.RuleApplied(s, previous)
		}
		s.Refresh()
	}
	s.onEnable = s.Refresh
	s.onDisable = func() {
		if g := s.Group(); g != nil {
			g.ResetState()
			g.Refresh()
		}
	}
	return s, nil
}

// Variant returns the type-specific implementation.
func (s *Sensor) Variant() SensorVariant { return s.variant }

// ConditionMet reports the sensor's vote: True to turn targets on, False
// to turn them off, None to abstain.
func (s *Sensor) ConditionMet() Tristate {
	return s.variant.ConditionMet(s)
}

// Targets returns the target devices.
func (s *Sensor) Targets() []*Device {
	if s.graph == nil {
		return nil
	}
	out := make([]*Device, 0, len(s.targets))
	for _, idx := range s.targets {
		out = append(out, s.graph.Devices[idx])
	}
	return out
}

// TargetNames returns the configured target names.
func (s *Sensor) TargetNames() []string {
	return append([]string(nil), s.targetNames...)
}

// Refresh asks the sensor's group to re-evaluate.
func (s *Sensor) Refresh() {
	if g := s.Group(); g != nil {
		g.Refresh()
	}
}

// RequestRefresh schedules a refresh on the scheduler goroutine. Hardware
// and subscription handlers call this instead of Refresh.
func (s *Sensor) RequestRefresh() {
	s.env.Scheduler.Create(0, s.Refresh, s.name+"_refresh")
}

// Trigger trips the sensor remotely when the variant supports it.
func (s *Sensor) Trigger() error {
	tr, ok := s.variant.(Triggerer)
	if !ok {
		return fmt.Errorf("%w: %s cannot be triggered", ErrNotSupported, s.typ)
	}
	return tr.Trigger(s)
}

// Start begins monitoring the variant's input.
func (s *Sensor) Start(ctx context.Context) error {
	if lc, ok := s.variant.(SensorLifecycle); ok {
		return lc.Start(ctx, s)
	}
	return nil
}

// Stop ends monitoring.
func (s *Sensor) Stop() error {
	if lc, ok := s.variant.(SensorLifecycle); ok {
		return lc.Stop()
	}
	return nil
}

// Attributes extends the base attributes with targets and condition.
func (s *Sensor) Attributes() map[string]any {
	attrs := s.Instance.Attributes()
	attrs["targets"] = s.TargetNames()
	attrs["condition_met"] = s.ConditionMet()
	return attrs
}
