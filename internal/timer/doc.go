// Package timer provides the node's software timer: a single priority queue
// of deferred callbacks keyed by epoch milliseconds.
//
// Everything that happens "later" goes through it: compiled schedule
// transitions, delayed enable/disable, fade steps, motion reset timeouts,
// sensor refresh requests from interrupt handlers and the daily reload.
//
//	  Create/Cancel (any goroutine)
//	            │
//	            ▼
//	┌──────────────────────────┐      ┌──────────────────────┐
//	│ queue (sorted by key)    │◀─────│ Run loop             │
//	│ key=expiry ms, +1 on hit │      │ fire expired → sleep │
//	└──────────────────────────┘      └──────────────────────┘
//	                                      │ holds command lock
//	                                      ▼
//	                                  callback()
//
// # Owner tags
//
// Every entry carries an owner tag. Creating an entry removes any earlier
// entry with the same tag, except for SchedulerTag, which holds one entry
// per compiled schedule transition.
//
// # Clocks
//
// The scheduler and everything built on it reads time through Clock.
// Production code passes Real(); tests pass NewFake() and step the queue
// with RunPending.
package timer
