package sensor

import (
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-node/internal/instance"
)

const (
	dummyOn  = "on"
	dummyOff = "off"
)

// Dummy is a virtual sensor whose rule is its vote: "on" or "off".
type Dummy struct{}

// NewDummy builds a dummy sensor. It takes no parameters.
func NewDummy(instance.Params) (*Dummy, error) {
	return &Dummy{}, nil
}

func (Dummy) ValidateRule(rule any) (any, error) {
	s, ok := rule.(string)
	if ok {
		switch v := strings.ToLower(strings.TrimSpace(s)); v {
		case dummyOn, dummyOff:
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: dummy accepts on or off, got %v", instance.ErrInvalidRule, rule)
}

func (Dummy) ConditionMet(s *instance.Sensor) instance.Tristate {
	switch s.CurrentRule() {
	case dummyOn:
		return instance.True
	case dummyOff:
		return instance.False
	}
	return instance.None
}

// Trigger sets the rule to "on".
func (Dummy) Trigger(s *instance.Sensor) error {
	return s.SetRule(dummyOn, false)
}
