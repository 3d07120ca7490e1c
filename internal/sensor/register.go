package sensor

import (
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/gpio"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/instance"
)

// Subscriber delivers MQTT messages. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// ReadingWriter records numeric readings. *influxdb.Client satisfies it
// and is safe to use when nil.
type ReadingWriter interface {
	WriteSensorReading(instance, quantity string, value float64, ts time.Time)
}

// Deps carries the transports sensor variants are built on.
type Deps struct {
	MQTT      Subscriber
	GPIO      gpio.Chip
	Telemetry ReadingWriter
}

// Sensor _type strings.
const (
	TypePIR        = "pir"
	TypeSwitch     = "switch"
	TypeDummy      = "dummy"
	TypeThermostat = "thermostat"
)

// Register binds every sensor type to reg.
func Register(reg *instance.Registry, deps Deps) {
	reg.RegisterSensor(TypePIR, func(p instance.Params) (instance.SensorVariant, error) {
		return NewPIR(p, deps.GPIO)
	})
	reg.RegisterSensor(TypeSwitch, func(p instance.Params) (instance.SensorVariant, error) {
		return NewSwitch(p, deps.GPIO)
	})
	reg.RegisterSensor(TypeDummy, func(p instance.Params) (instance.SensorVariant, error) {
		return NewDummy(p)
	})
	reg.RegisterSensor(TypeThermostat, func(p instance.Params) (instance.SensorVariant, error) {
		return NewThermostat(p, deps.MQTT, deps.Telemetry)
	})
}

// inputParams reads pin, pull and debounce_ms shared by GPIO inputs.
func inputParams(p instance.Params, chip gpio.Chip) (pin int, cfg gpio.InputConfig, err error) {
	if chip == nil {
		return 0, cfg, fmt.Errorf("%w: %s needs gpio", ErrNoTransport, p.Type)
	}
	if pin, err = p.RequiredInt("pin"); err != nil {
		return 0, cfg, err
	}
	if pin < 0 {
		return 0, cfg, fmt.Errorf("%w: pin must not be negative", instance.ErrInvalidParams)
	}
	pull, err := p.String("pull", "down")
	if err != nil {
		return 0, cfg, err
	}
	switch pull {
	case "down":
		cfg.PullDown = true
	case "up":
		cfg.PullUp = true
	case "none":
	default:
		return 0, cfg, fmt.Errorf("%w: pull must be up, down or none", instance.ErrInvalidParams)
	}
	ms, err := p.Int("debounce_ms", 0)
	if err != nil {
		return 0, cfg, err
	}
	if ms < 0 {
		return 0, cfg, fmt.Errorf("%w: debounce_ms must not be negative", instance.ErrInvalidParams)
	}
	cfg.Debounce = time.Duration(ms) * time.Millisecond
	cfg.Edge = gpio.EdgeBoth
	return pin, cfg, nil
}
