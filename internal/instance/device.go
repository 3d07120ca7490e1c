package instance

import (
	"context"
	"fmt"
)

// Device is an actuator instance: the shared state machine plus a
// DeviceVariant that knows how to switch the hardware.
type Device struct {
	Instance
	state   Tristate
	variant DeviceVariant
}

// NewDevice builds a device from its declarative parameters.
func NewDevice(p Params, v DeviceVariant, env Env) (*Device, error) {
	base, err := newInstance(KindDevice, p, v, env)
	if err != nil {
		return nil, err
	}
	d := &Device{Instance: base, variant: v}

	if ic, ok := v.(RuleInterceptor); ok {
		d.intercept = func(rule any, scheduled bool) (bool, error) {
			return ic.InterceptRule(d, rule, scheduled)
		}
	}
	d.applied = func(previous any) {
		if hook, ok := v.(DeviceRuleHook); ok {
			hook.RuleApplied(d, previous)
		}
	}
	d.onEnable = d.enabledHook
	d.onDisable = d.disabledHook
	return d, nil
}

// Variant returns the type-specific implementation.
func (d *Device) Variant() DeviceVariant { return d.variant }

// State returns the last successfully sent power state, or None when
// unknown.
func (d *Device) State() Tristate { return d.state }

// Send switches the device on or off through its variant and records the
// new state on success. A disabled device ignores on requests and reports
// success, so group bookkeeping is unaffected; off requests always go out.
func (d *Device) Send(on bool) error {
	if on && !d.enabled {
		d.env.Logger.Debug("ignoring turn on for disabled device", "device", d.name)
		return nil
	}
	if err := d.variant.Send(d, on); err != nil {
		d.env.Logger.Warn("device send failed", "device", d.name, "on", on, "error", err)
		return fmt.Errorf("sending to %s: %w", d.name, err)
	}
	d.setState(FromBool(on))
	return nil
}

// Resend repeats the last command when the device is on. Dimmable variants
// use it after a level change.
func (d *Device) Resend() error {
	if d.state != True || !d.enabled {
		return nil
	}
	return d.Send(true)
}

// IncrementRule adjusts a numeric rule by delta, clamped to the variant's
// range. Variants without a numeric grammar return ErrNotSupported.
func (d *Device) IncrementRule(delta float64) error {
	inc, ok := d.variant.(Incrementer)
	if !ok {
		return fmt.Errorf("%w: %s does not support increment_rule", ErrNotSupported, d.typ)
	}
	return inc.IncrementRule(d, delta)
}

// Start acquires hardware resources held by the variant.
func (d *Device) Start(ctx context.Context) error {
	if lc, ok := d.variant.(DeviceLifecycle); ok {
		return lc.Start(ctx, d)
	}
	return nil
}

// Stop releases hardware resources held by the variant.
func (d *Device) Stop() error {
	if lc, ok := d.variant.(DeviceLifecycle); ok {
		return lc.Stop()
	}
	return nil
}

// Attributes extends the base attributes with the power state.
func (d *Device) Attributes() map[string]any {
	attrs := d.Instance.Attributes()
	attrs["state"] = d.state
	return attrs
}

func (d *Device) setState(s Tristate) {
	if d.state == s {
		return
	}
	d.state = s
	d.emit(Event{Kind: EventStateChanged, State: s, Rule: d.currentRule})
}

// enabledHook forgets the power state and lets every group targeting the
// device re-apply its action.
func (d *Device) enabledHook() {
	d.state = None
	if d.graph != nil {
		d.graph.resetGroupsTargeting(d.index)
	}
}

// disabledHook turns the device off and notifies the variant.
func (d *Device) disabledHook() {
	if hook, ok := d.variant.(DeviceDisableHook); ok {
		hook.Disabled(d)
	}
	if d.state == True {
		if err := d.variant.Send(d, false); err != nil {
			d.env.Logger.Warn("failed to turn off disabled device", "device", d.name, "error", err)
			return
		}
		d.setState(False)
	}
}
