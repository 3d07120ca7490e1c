package instance

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/timer"
)

var testEpoch = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

var errDriver = errors.New("driver offline")

// levelDriver is a numeric device variant accepting 0-100.
type levelDriver struct {
	sends []bool
	err   error
}

func (l *levelDriver) ValidateRule(rule any) (any, error) {
	n, ok := IntRule(rule)
	if !ok || n < 0 || n > 100 {
		return nil, ErrInvalidRule
	}
	return n, nil
}

func (l *levelDriver) Send(_ *Device, on bool) error {
	l.sends = append(l.sends, on)
	return l.err
}

// relayDriver has no rule grammar.
type relayDriver struct {
	levelDriver
}

func (relayDriver) Ruleless() {}

func (relayDriver) ValidateRule(any) (any, error) {
	return nil, ErrInvalidRule
}

// voteSensor reports a fixed condition.
type voteSensor struct {
	cond        Tristate
	postActions int
}

func (v *voteSensor) ValidateRule(rule any) (any, error) {
	f, ok := FloatRule(rule)
	if !ok || f < 0 {
		return nil, ErrInvalidRule
	}
	return f, nil
}

func (v *voteSensor) ConditionMet(*Sensor) Tristate { return v.cond }

func (v *voteSensor) PostAction(*Sensor) { v.postActions++ }

type eventLog struct {
	events []Event
}

func (l *eventLog) Observe(ev Event) { l.events = append(l.events, ev) }

func (l *eventLog) kinds() []EventKind {
	out := make([]EventKind, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Kind
	}
	return out
}

func newTestEnv() (Env, *timer.Scheduler, *timer.FakeClock, *eventLog) {
	clock := timer.NewFake(testEpoch)
	sched := timer.New(clock, timer.Options{})
	log := &eventLog{}
	return Env{Scheduler: sched, Observer: log}, sched, clock, log
}

func mustDevice(t *testing.T, env Env, name string, v DeviceVariant, def any) *Device {
	t.Helper()
	d, err := NewDevice(Params{Name: name, Type: "test", DefaultRule: def}, v, env)
	if err != nil {
		t.Fatalf("NewDevice(%s) error = %v", name, err)
	}
	return d
}

func mustSensor(t *testing.T, env Env, name string, v SensorVariant, targets ...string) *Sensor {
	t.Helper()
	s, err := NewSensor(Params{Name: name, Type: "test", DefaultRule: 5, Targets: targets}, v, env)
	if err != nil {
		t.Fatalf("NewSensor(%s) error = %v", name, err)
	}
	return s
}
