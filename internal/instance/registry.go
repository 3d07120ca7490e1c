package instance

import (
	"fmt"
	"sort"
)

// DeviceConstructor builds the variant for one device entry.
type DeviceConstructor func(p Params) (DeviceVariant, error)

// SensorConstructor builds the variant for one sensor entry.
type SensorConstructor func(p Params) (SensorVariant, error)

// Registry maps _type strings to variant constructors. It is populated at
// startup and read-only afterwards.
type Registry struct {
	devices map[string]DeviceConstructor
	sensors map[string]SensorConstructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		devices: make(map[string]DeviceConstructor),
		sensors: make(map[string]SensorConstructor),
	}
}

// RegisterDevice binds a device _type to its constructor.
func (r *Registry) RegisterDevice(typ string, c DeviceConstructor) {
	r.devices[typ] = c
}

// RegisterSensor binds a sensor _type to its constructor.
func (r *Registry) RegisterSensor(typ string, c SensorConstructor) {
	r.sensors[typ] = c
}

// NewDevice constructs a device for p.Type.
func (r *Registry) NewDevice(p Params, env Env) (*Device, error) {
	c, ok := r.devices[p.Type]
	if !ok {
		return nil, fmt.Errorf("%w: device type %q", ErrUnknownType, p.Type)
	}
	v, err := c(p)
	if err != nil {
		return nil, fmt.Errorf("building %s (%s): %w", p.Name, p.Type, err)
	}
	return NewDevice(p, v, env)
}

// NewSensor constructs a sensor for p.Type.
func (r *Registry) NewSensor(p Params, env Env) (*Sensor, error) {
	c, ok := r.sensors[p.Type]
	if !ok {
		return nil, fmt.Errorf("%w: sensor type %q", ErrUnknownType, p.Type)
	}
	v, err := c(p)
	if err != nil {
		return nil, fmt.Errorf("building %s (%s): %w", p.Name, p.Type, err)
	}
	return NewSensor(p, v, env)
}

// DeviceTypes returns the registered device types, sorted.
func (r *Registry) DeviceTypes() []string {
	return sortedKeys(r.devices)
}

// SensorTypes returns the registered sensor types, sorted.
func (r *Registry) SensorTypes() []string {
	return sortedKeys(r.sensors)
}

func sortedKeys[T any](m map[string]T) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
