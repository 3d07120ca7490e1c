package instance

import "time"

// EventKind identifies what changed on an instance.
type EventKind string

const (
	EventRuleChanged   EventKind = "rule_changed"
	EventEnabled       EventKind = "enabled"
	EventDisabled      EventKind = "disabled"
	EventStateChanged  EventKind = "state_changed"
	EventGroupApplied  EventKind = "group_applied"
	EventFadeStarted   EventKind = "fade_started"
	EventFadeCompleted EventKind = "fade_completed"
)

// Event describes a change on an instance or group.
type Event struct {
	Kind      EventKind `json:"kind"`
	Instance  string    `json:"instance"`
	Type      string    `json:"type,omitempty"`
	Rule      any       `json:"rule,omitempty"`
	Previous  any       `json:"previous,omitempty"`
	Scheduled bool      `json:"scheduled,omitempty"`
	Step      bool      `json:"step,omitempty"`
	State     Tristate  `json:"state"`
	Time      time.Time `json:"time"`
}

// Observer receives instance events. Observe is called with the command
// lock held and must not block.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// Observe calls f(ev).
func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Observers fans an event out to several observers in order.
type Observers []Observer

// Observe forwards ev to every observer.
func (o Observers) Observe(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ev)
		}
	}
}
