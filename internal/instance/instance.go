package instance

import (
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes devices from sensors.
type Kind string

const (
	KindDevice Kind = "device"
	KindSensor Kind = "sensor"
)

// NoGroup is the group slot of an instance that belongs to no group.
const NoGroup = -1

// Instance is the rule-state machine shared by every device and sensor.
//
// States:
//   - enabled with a usable rule
//   - enabled with the "enabled" placeholder (ruleless types only)
//   - disabled
//
// Thread Safety: not safe for concurrent use. Callers hold the command
// lock, or run inside a scheduler callback which holds it.
type Instance struct {
	name     string
	nickname string
	typ      string
	kind     Kind
	index    int
	group    int
	graph    *Graph

	enabled       bool
	currentRule   any
	scheduledRule any
	defaultRule   any
	ruleQueue     []any

	variant  Variant
	ruleless bool
	env      Env

	// Hooks installed by the Device and Sensor wrappers.
	intercept func(rule any, scheduled bool) (bool, error)
	applied   func(previous any)
	onEnable  func()
	onDisable func()
}

func newInstance(kind Kind, p Params, v Variant, env Env) (Instance, error) {
	if p.Name == "" {
		return Instance{}, fmt.Errorf("%w: name is required", ErrInvalidParams)
	}
	if v == nil {
		return Instance{}, fmt.Errorf("%w: %s has no variant", ErrInvalidParams, p.Name)
	}
	if env.Scheduler == nil {
		return Instance{}, fmt.Errorf("%w: %s has no scheduler", ErrInvalidParams, p.Name)
	}
	_, ruleless := v.(Ruleless)

	i := Instance{
		name:     p.Name,
		nickname: p.Nickname,
		typ:      p.Type,
		kind:     kind,
		index:    -1,
		group:    NoGroup,
		enabled:  true,
		variant:  v,
		ruleless: ruleless,
		env:      env.withDefaults(),
	}
	if i.nickname == "" {
		i.nickname = p.Name
	}

	def, err := i.validateDefault(p.DefaultRule)
	if err != nil {
		return Instance{}, err
	}
	i.defaultRule = def
	i.currentRule = def
	i.scheduledRule = def
	if isRule(def, RuleDisabled) {
		i.enabled = false
	}
	return i, nil
}

func (i *Instance) validateDefault(rule any) (any, error) {
	if i.ruleless {
		if rule == nil {
			return RuleEnabled, nil
		}
		lit, ok := UniversalLiteral(rule)
		if !ok {
			return nil, fmt.Errorf("%w: %s accepts only enabled or disabled, got %v", ErrInvalidDefaultRule, i.name, rule)
		}
		return lit, nil
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: %s has no default_rule", ErrInvalidDefaultRule, i.name)
	}
	if _, ok := UniversalLiteral(rule); ok {
		return nil, fmt.Errorf("%w: %s default_rule cannot be %v", ErrInvalidDefaultRule, i.name, rule)
	}
	valid, err := i.validate(rule)
	if err != nil {
		return nil, fmt.Errorf("%w: %s default_rule %v: %v", ErrInvalidDefaultRule, i.name, rule, err)
	}
	return valid, nil
}

// Name returns the unique instance name ("device1", "sensor3").
func (i *Instance) Name() string { return i.name }

// Nickname returns the human-readable name.
func (i *Instance) Nickname() string { return i.nickname }

// Type returns the _type string the instance was built from.
func (i *Instance) Type() string { return i.typ }

// Kind returns whether this is a device or a sensor.
func (i *Instance) Kind() Kind { return i.kind }

// Index returns the arena slot of the instance within its kind.
func (i *Instance) Index() int { return i.index }

// Base returns the shared state machine.
func (i *Instance) Base() *Instance { return i }

// Enabled reports whether the instance is enabled.
func (i *Instance) Enabled() bool { return i.enabled }

// CurrentRule returns the rule in effect.
func (i *Instance) CurrentRule() any { return i.currentRule }

// ScheduledRule returns the rule dictated by the schedule.
func (i *Instance) ScheduledRule() any { return i.scheduledRule }

// DefaultRule returns the fallback rule.
func (i *Instance) DefaultRule() any { return i.defaultRule }

// RuleQueue returns a copy of the pending scheduled rules in firing order.
func (i *Instance) RuleQueue() []any {
	out := make([]any, len(i.ruleQueue))
	copy(out, i.ruleQueue)
	return out
}

// SetRuleQueue replaces the pending scheduled rules.
func (i *Instance) SetRuleQueue(rules []any) {
	i.ruleQueue = append(i.ruleQueue[:0:0], rules...)
}

// Scheduler returns the scheduler handle.
func (i *Instance) Scheduler() Scheduler { return i.env.Scheduler }

// Logger returns the instance logger.
func (i *Instance) Logger() Logger { return i.env.Logger }

// Now returns the current time from the scheduler clock.
func (i *Instance) Now() time.Time { return i.env.Scheduler.Clock().Now() }

// Graph returns the arena the instance belongs to, or nil before assembly.
func (i *Instance) Graph() *Graph { return i.graph }

// Group returns the instance's group, or nil.
func (i *Instance) Group() *Group {
	if i.graph == nil || i.group == NoGroup || i.group >= len(i.graph.Groups) {
		return nil
	}
	return i.graph.Groups[i.group]
}

// Enable enables the instance. A "disabled" current rule is replaced with
// GetUsableRule; if nothing usable exists the instance stays disabled.
func (i *Instance) Enable() {
	if isRule(i.currentRule, RuleDisabled) {
		usable := i.GetUsableRule()
		if isRule(usable, RuleDisabled) {
			i.env.Logger.Warn("cannot enable instance without a usable rule", "instance", i.name)
			return
		}
		i.currentRule = usable
	}
	if i.enabled {
		return
	}
	i.enabled = true
	i.emit(Event{Kind: EventEnabled, Rule: i.currentRule})
	if i.onEnable != nil {
		i.onEnable()
	}
}

// Disable disables the instance. Rule fields are left untouched.
func (i *Instance) Disable() {
	if !i.enabled {
		return
	}
	i.enabled = false
	i.emit(Event{Kind: EventDisabled, Rule: i.currentRule})
	if i.onDisable != nil {
		i.onDisable()
	}
}

// GetUsableRule returns scheduled_rule if usable, else default_rule if
// usable, else "enabled" for ruleless types, else "disabled".
func (i *Instance) GetUsableRule() any {
	if IsUsable(i.scheduledRule) {
		return i.scheduledRule
	}
	if IsUsable(i.defaultRule) {
		return i.defaultRule
	}
	if i.ruleless {
		return RuleEnabled
	}
	return RuleDisabled
}

// ValidateRule checks rule without applying it and returns the coerced form.
func (i *Instance) ValidateRule(rule any) (any, error) {
	return i.validate(rule)
}

func (i *Instance) validate(rule any) (valid any, err error) {
	if lit, ok := UniversalLiteral(rule); ok {
		return lit, nil
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: empty rule", ErrInvalidRule)
	}
	if _, isBool := rule.(bool); isBool {
		return nil, fmt.Errorf("%w: boolean rule %v", ErrInvalidRule, rule)
	}

	defer func() {
		if r := recover(); r != nil {
			valid = nil
			err = fmt.Errorf("%w: %v", ErrInvalidRule, r)
		}
	}()
	valid, err = i.variant.ValidateRule(rule)
	if err != nil {
		if !errors.Is(err, ErrInvalidRule) {
			err = fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
		return nil, err
	}
	return valid, nil
}

// SetRule validates rule and, on success, makes it the current rule (and
// the scheduled rule when scheduled is set) before applying it. An invalid
// rule returns ErrInvalidRule and changes nothing.
func (i *Instance) SetRule(rule any, scheduled bool) error {
	if i.intercept != nil {
		handled, err := i.intercept(rule, scheduled)
		if handled || err != nil {
			return err
		}
	}

	valid, err := i.validate(rule)
	if err != nil {
		i.env.Logger.Debug("rule rejected", "instance", i.name, "rule", rule, "error", err)
		return err
	}

	previous := i.currentRule
	i.currentRule = valid
	if scheduled {
		i.scheduledRule = valid
	}
	i.emit(Event{Kind: EventRuleChanged, Rule: valid, Previous: previous, Scheduled: scheduled})
	i.applyNewRule(previous)
	return nil
}

// applyNewRule reconciles enabled with the new current rule, then runs the
// variant hook.
func (i *Instance) applyNewRule(previous any) {
	switch {
	case isRule(i.currentRule, RuleDisabled):
		i.Disable()
	case isRule(i.currentRule, RuleEnabled):
		i.currentRule = i.GetUsableRule()
		if isRule(i.currentRule, RuleDisabled) {
			i.Disable()
		} else if !i.enabled {
			i.Enable()
		}
	default:
		if !i.enabled {
			i.Enable()
		}
	}
	if i.applied != nil && i.enabled {
		i.applied(previous)
	}
}

// NextRule pops the head of the rule queue and applies it as a scheduled
// rule. It is only called from scheduler callbacks.
func (i *Instance) NextRule() error {
	if len(i.ruleQueue) == 0 {
		i.env.Logger.Warn("next rule requested with empty queue", "instance", i.name)
		return nil
	}
	next := i.ruleQueue[0]
	i.ruleQueue = i.ruleQueue[1:]
	if err := i.SetRule(next, true); err != nil {
		i.env.Logger.Error("scheduled rule rejected", "instance", i.name, "rule", next, "error", err)
		return err
	}
	return nil
}

// ResetRule restores the scheduled rule as the current rule.
func (i *Instance) ResetRule() error {
	return i.SetRule(i.scheduledRule, false)
}

// ForceDisable sets every rule field to "disabled" and disables the
// instance. It is the last fallback when no rule validates.
func (i *Instance) ForceDisable() {
	previous := i.currentRule
	i.currentRule = RuleDisabled
	i.scheduledRule = RuleDisabled
	i.defaultRule = RuleDisabled
	i.emit(Event{Kind: EventRuleChanged, Rule: RuleDisabled, Previous: previous, Scheduled: true})
	i.Disable()
}

// SetCurrentRule replaces the current rule without validation or hooks.
// Variants use it for intermediate values such as fade steps; the event
// is marked as a step.
func (i *Instance) SetCurrentRule(rule any) {
	previous := i.currentRule
	i.currentRule = rule
	i.emit(Event{Kind: EventRuleChanged, Rule: rule, Previous: previous, Step: true})
}

// SetScheduledRule replaces the scheduled rule without validation.
func (i *Instance) SetScheduledRule(rule any) {
	i.scheduledRule = rule
}

// EnableIn enables the instance after d. A later EnableIn or DisableIn
// supersedes a pending one.
func (i *Instance) EnableIn(d time.Duration) {
	i.env.Scheduler.Create(d, i.Enable, i.name)
}

// DisableIn disables the instance after d.
func (i *Instance) DisableIn(d time.Duration) {
	i.env.Scheduler.Create(d, i.Disable, i.name)
}

// Attributes returns a JSON-serializable snapshot of the state machine.
func (i *Instance) Attributes() map[string]any {
	attrs := map[string]any{
		"name":           i.name,
		"nickname":       i.nickname,
		"_type":          i.typ,
		"kind":           string(i.kind),
		"enabled":        i.enabled,
		"current_rule":   i.currentRule,
		"scheduled_rule": i.scheduledRule,
		"default_rule":   i.defaultRule,
		"rule_queue":     i.RuleQueue(),
		"group":          nil,
	}
	if g := i.Group(); g != nil {
		attrs["group"] = g.Name()
	}
	if p, ok := i.variant.(AttributeProvider); ok {
		for k, v := range p.Attributes() {
			if _, exists := attrs[k]; !exists {
				attrs[k] = v
			}
		}
	}
	return attrs
}

func (i *Instance) emit(ev Event) {
	ev.Instance = i.name
	ev.Type = i.typ
	if ev.Time.IsZero() {
		ev.Time = i.Now()
	}
	i.env.Observer.Observe(ev)
}

// Emit publishes a variant-specific event for this instance.
func (i *Instance) Emit(ev Event) {
	i.emit(ev)
}
