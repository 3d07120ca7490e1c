package instance

import "encoding/json"

// Tristate is a three-valued boolean used for sensor conditions, group
// state and device power state. None is load-bearing: a sensor returning
// None abstains rather than voting off.
type Tristate int8

const (
	None Tristate = iota
	True
	False
)

// FromBool converts a bool to True or False.
func FromBool(b bool) Tristate {
	if b {
		return True
	}
	return False
}

// Bool returns the boolean value and whether the state is resolved.
func (t Tristate) Bool() (value bool, ok bool) {
	switch t {
	case True:
		return true, true
	case False:
		return false, true
	}
	return false, false
}

func (t Tristate) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "none"
}

// MarshalJSON encodes True/False/None as true/false/null.
func (t Tristate) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	}
	return []byte("null"), nil
}

// UnmarshalJSON decodes true/false/null.
func (t *Tristate) UnmarshalJSON(data []byte) error {
	var b *bool
	if err := json.Unmarshal(data, &b); err != nil {
		return err
	}
	if b == nil {
		*t = None
		return nil
	}
	*t = FromBool(*b)
	return nil
}
