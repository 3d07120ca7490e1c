package process

import "errors"

// ErrRebootRequired is returned when the node cannot continue without a
// restart, such as after a boot step exhausted its retries.
var ErrRebootRequired = errors.New("process: reboot required")

// ExitCodeReboot is EX_TEMPFAIL from sysexits.h. systemd treats it as a
// failure and restarts the unit.
const ExitCodeReboot = 75

// ExitCode maps the error run returned to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrRebootRequired):
		return ExitCodeReboot
	default:
		return 1
	}
}
