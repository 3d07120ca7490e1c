package device

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/instance"
)

const fadePrefix = "fade/"

// Dimmer is a brightness device driven over MQTT.
//
// Rules: an integer in [min_rule, max_rule], or "fade/<target>/<seconds>"
// which walks the level to target one step at a time over the period.
// Fade steps are scheduler entries tagged "<name>_fade".
type Dimmer struct {
	min, max int
	topic    string
	qos      byte
	pub      Publisher

	fade *fadeState
}

type fadeState struct {
	start   int
	target  int
	steps   int
	started time.Time
	step    time.Duration
}

func (f *fadeState) up() bool { return f.target > f.start }

// NewDimmer builds a dimmer from its parameters: topic (required), qos,
// min_rule (default 0) and max_rule (default 100).
func NewDimmer(p instance.Params, pub Publisher) (*Dimmer, error) {
	topic, qos, err := commandTarget(p, pub)
	if err != nil {
		return nil, err
	}
	lo, err := p.Int("min_rule", 0)
	if err != nil {
		return nil, err
	}
	hi, err := p.Int("max_rule", 100)
	if err != nil {
		return nil, err
	}
	if lo > hi {
		return nil, fmt.Errorf("%w: min_rule %d above max_rule %d", instance.ErrInvalidParams, lo, hi)
	}
	if s, ok := p.DefaultRule.(string); ok && isFade(s) {
		return nil, fmt.Errorf("%w: default_rule cannot be a fade", instance.ErrInvalidDefaultRule)
	}
	return &Dimmer{min: lo, max: hi, topic: topic, qos: qos, pub: pub}, nil
}

func isFade(s string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), fadePrefix)
}

// parseFade splits "fade/<target>/<seconds>" and range-checks it.
func (dm *Dimmer) parseFade(s string) (target, seconds int, err error) {
	parts := strings.Split(strings.ToLower(strings.TrimSpace(s)), "/")
	if len(parts) != 3 {
		return 0, 0, fmt.Errorf("%w: fade must be fade/<target>/<seconds>, got %q", instance.ErrInvalidRule, s)
	}
	target, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: fade target %q is not an integer", instance.ErrInvalidRule, parts[1])
	}
	seconds, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: fade period %q is not an integer", instance.ErrInvalidRule, parts[2])
	}
	if target < dm.min || target > dm.max {
		return 0, 0, fmt.Errorf("%w: fade target %d outside [%d, %d]", instance.ErrInvalidRule, target, dm.min, dm.max)
	}
	if seconds < 0 {
		return 0, 0, fmt.Errorf("%w: negative fade period %d", instance.ErrInvalidRule, seconds)
	}
	return target, seconds, nil
}

// ValidateRule accepts an integer level in range, or a well-formed fade
// which is returned in canonical form.
func (dm *Dimmer) ValidateRule(rule any) (any, error) {
	if s, ok := rule.(string); ok && isFade(s) {
		target, seconds, err := dm.parseFade(s)
		if err != nil {
			return nil, err
		}
		return fmt.Sprintf("%s%d/%d", fadePrefix, target, seconds), nil
	}
	n, ok := instance.IntRule(rule)
	if !ok {
		return nil, fmt.Errorf("%w: %v is not an integer", instance.ErrInvalidRule, rule)
	}
	if n < dm.min || n > dm.max {
		return nil, fmt.Errorf("%w: %d outside [%d, %d]", instance.ErrInvalidRule, n, dm.min, dm.max)
	}
	return n, nil
}

// InterceptRule claims fade commands. Everything else falls through to
// ValidateRule.
func (dm *Dimmer) InterceptRule(d *instance.Device, rule any, scheduled bool) (bool, error) {
	s, ok := rule.(string)
	if !ok || !isFade(s) {
		return false, nil
	}
	target, seconds, err := dm.parseFade(s)
	if err != nil {
		return true, err
	}

	if !d.Enabled() {
		d.Enable()
	}
	current, numeric := instance.IntRule(d.CurrentRule())
	if !numeric || seconds == 0 {
		dm.abortFade(d)
		return true, d.SetRule(target, scheduled)
	}
	if scheduled {
		d.SetScheduledRule(target)
	}

	steps := target - current
	if steps < 0 {
		steps = -steps
	}
	dm.abortFade(d)
	if steps == 0 {
		return true, nil
	}

	step := time.Duration(seconds*1000/steps) * time.Millisecond
	if step <= 0 {
		step = time.Millisecond
	}
	dm.fade = &fadeState{
		start:   current,
		target:  target,
		steps:   steps,
		started: d.Now(),
		step:    step,
	}
	d.Emit(instance.Event{Kind: instance.EventFadeStarted, Rule: target, Previous: current, Scheduled: scheduled})
	d.Logger().Debug("fade started", "device", d.Name(), "from", current, "to", target, "step", step)
	d.Scheduler().Create(step, func() { dm.tick(d) }, d.Name()+"_fade")
	return true, nil
}

// tick advances the fade to the level due by now. Lateness is absorbed
// because the level is derived from elapsed time, not the tick count.
func (dm *Dimmer) tick(d *instance.Device) {
	f := dm.fade
	if f == nil {
		return
	}
	current, numeric := instance.IntRule(d.CurrentRule())
	if !d.Enabled() || !numeric {
		dm.fade = nil
		return
	}

	n := int(d.Now().Sub(f.started) / f.step)
	if n > f.steps {
		n = f.steps
	}
	value := f.start + n
	if !f.up() {
		value = f.start - n
	}
	// A manual change in the fade's own direction may already be ahead.
	if (f.up() && value < current) || (!f.up() && value > current) {
		value = current
	}

	if value != current {
		d.SetCurrentRule(value)
		if err := d.Resend(); err != nil {
			d.Logger().Warn("fade step not delivered", "device", d.Name(), "level", value, "error", err)
		}
	}

	if (f.up() && value >= f.target) || (!f.up() && value <= f.target) {
		dm.fade = nil
		d.Emit(instance.Event{Kind: instance.EventFadeCompleted, Rule: d.CurrentRule()})
		return
	}

	next := f.started.Add(time.Duration(n+1) * f.step).Sub(d.Now())
	d.Scheduler().Create(next, func() { dm.tick(d) }, d.Name()+"_fade")
}

func (dm *Dimmer) abortFade(d *instance.Device) {
	if dm.fade == nil {
		return
	}
	dm.fade = nil
	d.Scheduler().Cancel(d.Name() + "_fade")
	d.Logger().Debug("fade aborted", "device", d.Name())
}

// Fading reports whether a fade is in progress.
func (dm *Dimmer) Fading() bool { return dm.fade != nil }

// RuleApplied aborts a running fade when the new rule is not a level or
// does not advance the level toward the fade target, then pushes the new
// level to the lamp.
func (dm *Dimmer) RuleApplied(d *instance.Device, previous any) {
	if f := dm.fade; f != nil {
		next, ok := instance.IntRule(d.CurrentRule())
		prev, prevOK := instance.IntRule(previous)
		switch {
		case !ok:
			dm.abortFade(d)
		case prevOK && f.up() && next <= prev && next < f.target:
			dm.abortFade(d)
		case prevOK && !f.up() && next >= prev && next > f.target:
			dm.abortFade(d)
		}
	}
	if err := d.Resend(); err != nil {
		d.Logger().Warn("level change not delivered", "device", d.Name(), "error", err)
	}
}

// Disabled stops any fade.
func (dm *Dimmer) Disabled(d *instance.Device) {
	dm.abortFade(d)
}

// IncrementRule adds delta to the current level, clamped to the range.
// Out-of-range results are clamped rather than rejected.
func (dm *Dimmer) IncrementRule(d *instance.Device, delta float64) error {
	current, ok := instance.IntRule(d.CurrentRule())
	if !ok {
		if current, ok = instance.IntRule(d.GetUsableRule()); !ok {
			current = dm.min
		}
	}
	next := float64(current) + math.Round(delta)
	next = math.Max(float64(dm.min), math.Min(float64(dm.max), next))
	return d.SetRule(int(next), false)
}

type dimmerCommand struct {
	State      string `json:"state"`
	Brightness *int   `json:"brightness,omitempty"`
}

// Send publishes {"state":"ON","brightness":N} or {"state":"OFF"}.
func (dm *Dimmer) Send(d *instance.Device, on bool) error {
	cmd := dimmerCommand{State: "OFF"}
	if on {
		level, ok := instance.IntRule(d.CurrentRule())
		if !ok {
			level = dm.max
		}
		cmd.State = "ON"
		cmd.Brightness = &level
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding dimmer command: %w", err)
	}
	return dm.pub.Publish(dm.topic, payload, dm.qos, false)
}

// Attributes exposes the range and fade progress.
func (dm *Dimmer) Attributes() map[string]any {
	attrs := map[string]any{
		"min_rule":    dm.min,
		"max_rule":    dm.max,
		"topic":       dm.topic,
		"fading":      dm.fade != nil,
		"fade_target": nil,
	}
	if dm.fade != nil {
		attrs["fade_target"] = dm.fade.target
	}
	return attrs
}
