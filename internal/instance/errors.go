package instance

import "errors"

// Domain-specific errors for the instance package.
var (
	// ErrInvalidRule is returned when a rule fails validation. The
	// instance is left unchanged.
	ErrInvalidRule = errors.New("instance: invalid rule")

	// ErrInvalidDefaultRule is returned at construction when default_rule
	// is missing, unusable, or a universal literal on a rule-typed instance.
	ErrInvalidDefaultRule = errors.New("instance: invalid default rule")

	// ErrInvalidParams is returned by variant constructors for bad or
	// missing type parameters.
	ErrInvalidParams = errors.New("instance: invalid parameters")

	// ErrUnknownType is returned when no constructor is registered for _type.
	ErrUnknownType = errors.New("instance: unknown type")

	// ErrUnknownTarget is returned when a sensor names a device that is
	// not part of the graph.
	ErrUnknownTarget = errors.New("instance: unknown target")

	// ErrNotSupported is returned when an operation does not apply to the
	// instance, such as triggering a sensor type without a trigger.
	ErrNotSupported = errors.New("instance: operation not supported")

	// ErrDuplicateName is returned when two instances share a name.
	ErrDuplicateName = errors.New("instance: duplicate name")
)
