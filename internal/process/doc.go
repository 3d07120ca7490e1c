// Package process owns the node's lifecycle against its supervisor.
//
// The node has no hardware reset line. A "reboot" is a clean exit with
// ExitCodeReboot after telling systemd the service is stopping, so that
// Restart=on-failure brings it back:
//
//	[Service]
//	Type=notify
//	Restart=on-failure
//	WatchdogSec=30
//
// Boot steps that depend on the network or the filesystem go through
// Retry; exhausting it yields ErrRebootRequired.
package process
