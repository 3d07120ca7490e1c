package location

import "errors"

var (
	// ErrInvalidCoordinates is returned when latitude or longitude is out of range.
	ErrInvalidCoordinates = errors.New("location: invalid coordinates")

	// ErrUnknownTimezone is returned when the configured IANA zone cannot be loaded.
	ErrUnknownTimezone = errors.New("location: unknown timezone")

	// ErrSunNeverRises is returned for a polar-night date.
	ErrSunNeverRises = errors.New("location: sun does not rise")

	// ErrSunNeverSets is returned for a midnight-sun date.
	ErrSunNeverSets = errors.New("location: sun does not set")
)
