// Package instance implements the rule-state machine shared by every device
// and sensor on the node, and the Group that turns sensor votes into device
// commands.
//
// Architecture:
//
//	┌────────────────────────── Graph (arena) ──────────────────────────┐
//	│  Devices []*Device     Sensors []*Sensor     Groups []*Group      │
//	│      ▲                     │  targets []int      │ triggers []int │
//	│      └─────────────────────┴─────────────────────┘ targets  []int │
//	└───────────────────────────────────────────────────────────────────┘
//
//	Device = Instance + DeviceVariant (Send)
//	Sensor = Instance + SensorVariant (ConditionMet)
//
// # Rules
//
// Every instance has a current, scheduled and default rule. The literals
// "enabled" and "disabled" are accepted by every type, case-insensitively;
// everything else goes through the variant's ValidateRule. A rejected rule
// returns ErrInvalidRule and leaves the instance untouched.
//
// # Groups
//
// Sensors with the same target set (in any order) share a Group. Refresh
// collects ConditionMet from enabled sensors: any True turns targets on,
// all False turns them off, otherwise nothing happens. A group records its
// state only after every target accepted the command.
//
// # Variants
//
// Device and sensor types live in the device and sensor packages and are
// registered with a Registry keyed by _type. Optional behaviour (fades,
// triggers, post-action routines, hardware lifecycles) is discovered through
// small interfaces such as RuleInterceptor, Triggerer and SensorLifecycle.
//
// # Thread Safety
//
// Nothing in this package locks. All mutation happens either in a scheduler
// callback or under the API command lock, which are the same lock.
package instance
