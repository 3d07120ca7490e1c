// Package automation compiles the node document into a running instance
// graph and drives its schedules.
//
// The document holds one object per device and sensor plus metadata with
// user schedule keywords. Each instance may carry a schedule mapping a
// wall-clock time (or keyword) to a rule:
//
//	"device1": {
//	    "_type": "dimmer",
//	    "default_rule": 100,
//	    "schedule": {"07:00": 100, "sunset": "fade/50/600", "23:00": "disabled"}
//	}
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────┐
//	│                  Engine (engine.go)                   │
//	│  ┌──────────────┐   ┌─────────────┐   ┌───────────┐  │
//	│  │   Document   │──▶│ instance.   │──▶│ timer.    │  │
//	│  │(document.go) │   │ Graph       │   │ Scheduler │  │
//	│  └──────────────┘   └─────────────┘   └───────────┘  │
//	│         ▲                  │                          │
//	│  ┌──────────────┐          ▼                          │
//	│  │ DocumentStore│   Observers: MQTT state, InfluxDB,  │
//	│  │  (store.go)  │   rule history (observers.go)       │
//	│  └──────────────┘                                     │
//	└──────────────────────────────────────────────────────┘
//
// # Compilation
//
// ConvertRules expands every schedule key into yesterday, today and
// tomorrow, keeps the latest past entry as the current rule and the rest
// as upcoming transitions. BuildQueue applies the current rule and arms one
// scheduler entry per transition under timer.SchedulerTag. A reload at a
// random minute between 03:00 and 04:00 rebuilds everything daily.
//
// # Thread Safety
//
// Engine methods must be called with the command lock held: the scheduler
// holds it around callbacks and the API around requests.
package automation
