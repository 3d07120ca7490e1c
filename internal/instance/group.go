package instance

import "errors"

// Group joins the sensors that share an identical target set with those
// targets, and turns N sensor votes into one action.
//
// Any True vote turns targets on. Targets turn off only when every enabled
// sensor votes False. Any None vote with no True abstains.
type Group struct {
	name     string
	index    int
	graph    *Graph
	triggers []int
	targets  []int
	state    Tristate

	postActions []func()
}

// Name returns the group name ("group1").
func (g *Group) Name() string { return g.name }

// State returns the last successfully applied action.
func (g *Group) State() Tristate { return g.state }

// Triggers returns the member sensors.
func (g *Group) Triggers() []*Sensor {
	out := make([]*Sensor, 0, len(g.triggers))
	for _, idx := range g.triggers {
		out = append(out, g.graph.Sensors[idx])
	}
	return out
}

// Targets returns the shared target devices.
func (g *Group) Targets() []*Device {
	out := make([]*Device, 0, len(g.targets))
	for _, idx := range g.targets {
		out = append(out, g.graph.Devices[idx])
	}
	return out
}

// AddPostActionRoutine registers fn to run after every successful
// ApplyAction.
func (g *Group) AddPostActionRoutine(fn func()) {
	g.postActions = append(g.postActions, fn)
}

// ResetState forgets the applied action so the next Refresh re-sends.
func (g *Group) ResetState() {
	g.state = None
}

// CheckSensorConditions collects the votes of enabled triggers.
func (g *Group) CheckSensorConditions() []Tristate {
	conditions := make([]Tristate, 0, len(g.triggers))
	for _, s := range g.Triggers() {
		if s.Enabled() {
			conditions = append(conditions, s.ConditionMet())
		}
	}
	return conditions
}

// DetermineCorrectAction reduces votes to an action: True if any vote is
// True, else None if any vote is None, else False. It returns None when
// the action equals the group's current state.
func (g *Group) DetermineCorrectAction(conditions []Tristate) Tristate {
	action := False
	for _, c := range conditions {
		if c == True {
			action = True
			break
		}
		if c == None {
			action = None
		}
	}
	if action == g.state {
		return None
	}
	return action
}

// ApplyAction sends action to every target whose state differs. The group
// state is updated, and post-action routines run, only if every send
// succeeded; a partial failure is retried on the next refresh.
func (g *Group) ApplyAction(action Tristate) error {
	on, ok := action.Bool()
	if !ok {
		return nil
	}

	var errs []error
	for _, d := range g.Targets() {
		if d.State() == action {
			continue
		}
		if err := d.Send(on); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		g.graph.env.Logger.Warn("group action incomplete", "group", g.name, "action", action.String(), "failures", len(errs))
		return errors.Join(errs...)
	}

	g.state = action
	g.graph.env.Observer.Observe(Event{
		Kind:     EventGroupApplied,
		Instance: g.name,
		State:    action,
		Time:     g.graph.env.Scheduler.Clock().Now(),
	})
	for _, fn := range g.postActions {
		fn()
	}
	return nil
}

// Resend repeats the applied action to every target, whatever state the
// target recorded. Sensors call it when readings show an earlier command
// did not take effect.
func (g *Group) Resend() error {
	on, ok := g.state.Bool()
	if !ok {
		return nil
	}
	var errs []error
	for _, d := range g.Targets() {
		if err := d.Send(on); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Refresh re-evaluates the triggers and applies the resulting action.
func (g *Group) Refresh() {
	action := g.DetermineCorrectAction(g.CheckSensorConditions())
	if action == None {
		return
	}
	//nolint:errcheck // failures are logged in ApplyAction and retried on the next refresh
	g.ApplyAction(action)
}

// Attributes returns a JSON-serializable snapshot of the group.
func (g *Group) Attributes() map[string]any {
	triggers := make([]string, 0, len(g.triggers))
	for _, s := range g.Triggers() {
		triggers = append(triggers, s.Name())
	}
	targets := make([]string, 0, len(g.targets))
	for _, d := range g.Targets() {
		targets = append(targets, d.Name())
	}
	return map[string]any{
		"name":     g.name,
		"triggers": triggers,
		"targets":  targets,
		"state":    g.state,
	}
}
