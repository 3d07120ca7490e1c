package device

import (
	"fmt"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/gpio"
	"github.com/nerrad567/gray-logic-node/internal/instance"
)

// Publisher sends a command payload to an MQTT topic. *mqtt.Client
// satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Deps carries the transports device variants are built on. A nil field
// makes the types that need it fail to build with ErrNoTransport.
type Deps struct {
	MQTT Publisher
	GPIO gpio.Chip
}

// Device _type strings.
const (
	TypeDimmer    = "dimmer"
	TypeRelay     = "relay"
	TypeGPIORelay = "gpio-relay"
)

const defaultQoS = 1

// Register binds every device type to reg.
func Register(reg *instance.Registry, deps Deps) {
	reg.RegisterDevice(TypeDimmer, func(p instance.Params) (instance.DeviceVariant, error) {
		return NewDimmer(p, deps.MQTT)
	})
	reg.RegisterDevice(TypeRelay, func(p instance.Params) (instance.DeviceVariant, error) {
		return NewRelay(p, deps.MQTT)
	})
	reg.RegisterDevice(TypeGPIORelay, func(p instance.Params) (instance.DeviceVariant, error) {
		return NewGPIORelay(p, deps.GPIO)
	})
}

// commandTarget reads the topic and qos parameters shared by MQTT devices.
func commandTarget(p instance.Params, pub Publisher) (topic string, qos byte, err error) {
	if pub == nil {
		return "", 0, fmt.Errorf("%w: %s needs mqtt", ErrNoTransport, p.Type)
	}
	topic, err = p.RequiredString("topic")
	if err != nil {
		return "", 0, err
	}
	q, err := p.Int("qos", defaultQoS)
	if err != nil {
		return "", 0, err
	}
	if q < 0 || q > 2 {
		return "", 0, fmt.Errorf("%w: qos must be 0, 1 or 2", instance.ErrInvalidParams)
	}
	return topic, byte(q), nil
}
