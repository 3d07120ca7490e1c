package instance

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/timer"
)

// Scheduler is the subset of *timer.Scheduler instances depend on.
type Scheduler interface {
	Create(period time.Duration, fn timer.Callback, tag string) int64
	Cancel(tag string) int
	Clock() timer.Clock
}

// Logger is the logging interface used by instances and variants.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Env carries the process-wide handles every instance needs.
type Env struct {
	Scheduler Scheduler
	Logger    Logger
	Observer  Observer
}

func (e Env) withDefaults() Env {
	if e.Logger == nil {
		e.Logger = noopLogger{}
	}
	if e.Observer == nil {
		e.Observer = Observers(nil)
	}
	return e
}

// Variant is the type-specific half of an instance: its rule grammar.
//
// ValidateRule never sees the universal literals or booleans; those are
// handled by Instance. It returns the coerced rule or an error wrapping
// ErrInvalidRule, and must not panic.
type Variant interface {
	ValidateRule(rule any) (any, error)
}

// Ruleless marks variants with no rule grammar of their own. For them the
// literal "enabled" is a usable rule and default_rule must be a literal.
type Ruleless interface {
	Ruleless()
}

// DeviceVariant drives a physical or remote actuator.
type DeviceVariant interface {
	Variant
	// Send switches the actuator. Dimmable variants send the current
	// rule as their level when on is true.
	Send(d *Device, on bool) error
}

// SensorVariant reports whether its condition is met.
type SensorVariant interface {
	Variant
	ConditionMet(s *Sensor) Tristate
}

// DeviceRuleHook runs after a device accepted and applied a new rule.
type DeviceRuleHook interface {
	RuleApplied(d *Device, previous any)
}

// SensorRuleHook runs after a sensor accepted and applied a new rule.
type SensorRuleHook interface {
	RuleApplied(s *Sensor, previous any)
}

// RuleInterceptor lets a device claim rules outside the plain grammar
// (such as fade commands) before validation. handled=false falls through
// to normal validation.
type RuleInterceptor interface {
	InterceptRule(d *Device, rule any, scheduled bool) (handled bool, err error)
}

// DeviceDisableHook runs when a device is disabled.
type DeviceDisableHook interface {
	Disabled(d *Device)
}

// Incrementer is implemented by numeric devices that support relative
// adjustment of their rule.
type Incrementer interface {
	IncrementRule(d *Device, delta float64) error
}

// Triggerer is implemented by sensors that can be tripped remotely.
type Triggerer interface {
	Trigger(s *Sensor) error
}

// PostActionRoutine is registered on the sensor's group and runs after the
// group successfully applied an action.
type PostActionRoutine interface {
	PostAction(s *Sensor)
}

// AttributeProvider contributes type-specific fields to Attributes.
type AttributeProvider interface {
	Attributes() map[string]any
}

// DeviceLifecycle is implemented by devices that hold hardware resources.
type DeviceLifecycle interface {
	Start(ctx context.Context, d *Device) error
	Stop() error
}

// SensorLifecycle is implemented by sensors that monitor hardware or a
// subscription. Handlers must only record readings and request a refresh
// through the scheduler.
type SensorLifecycle interface {
	Start(ctx context.Context, s *Sensor) error
	Stop() error
}
