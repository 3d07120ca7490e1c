package instance

import (
	"fmt"
	"strings"
)

// Params is the declarative configuration of one instance as handed to a
// variant constructor.
type Params struct {
	Name        string
	Type        string
	Nickname    string
	DefaultRule any
	Targets     []string

	// Extra holds the free-form type parameters (pin, topic, min_rule...).
	Extra map[string]any
}

// String returns Extra[key] as a string, or def when absent.
func (p Params) String(key, def string) (string, error) {
	v, ok := p.Extra[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidParams, key)
	}
	return s, nil
}

// RequiredString returns Extra[key] as a non-empty string.
func (p Params) RequiredString(key string) (string, error) {
	s, err := p.String(key, "")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
	}
	return s, nil
}

// Int returns Extra[key] as an int, or def when absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p.Extra[key]
	if !ok || v == nil {
		return def, nil
	}
	n, ok := IntRule(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrInvalidParams, key)
	}
	return n, nil
}

// RequiredInt returns Extra[key] as an int and fails when absent.
func (p Params) RequiredInt(key string) (int, error) {
	if _, ok := p.Extra[key]; !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidParams, key)
	}
	return p.Int(key, 0)
}

// Float returns Extra[key] as a float64, or def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p.Extra[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := FloatRule(v)
	if !ok {
		return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidParams, key)
	}
	return f, nil
}

// Bool returns Extra[key] as a bool, or def when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	v, ok := p.Extra[key]
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrInvalidParams, key)
	}
	return b, nil
}
