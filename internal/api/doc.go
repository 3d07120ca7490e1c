// Package api implements the HTTP command surface and WebSocket event stream
// of a node.
//
// This package provides:
//   - REST endpoints for instance commands, schedules and keywords
//   - A WebSocket hub that streams instance events to subscribed clients
//   - Middleware (request ID, logging, recovery, CORS, rate limiting)
//
// # Command lock
//
// Every command endpoint runs with the node's command lock held, the same
// lock the scheduler holds while firing callbacks. Commands and timers
// therefore never interleave. /health and /ws do not take it.
//
// # Events
//
// The Hub is an instance.Observer. Each event is broadcast on the channel
// named by its kind (rule_changed, state_changed, group_applied, ...).
// Clients subscribe with:
//
//	{"type":"subscribe","id":"1","payload":{"channels":["rule_changed"]}}
//
// The "*" channel receives every event. {"type":"channels"} lists the
// current subscriptions.
//
// # Errors
//
// Domain errors map to statuses: an invalid rule is 422, an unknown
// instance, keyword or schedule entry is 404, an operation the instance
// type does not support is 409, and a malformed time or body is 400.
package api
