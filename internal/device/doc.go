// Package device implements the node's actuator types.
//
// Each type is an instance.DeviceVariant registered under its _type:
//
//	dimmer      int level in [min_rule, max_rule] or fade/<target>/<s>   MQTT JSON
//	relay       enabled/disabled only                                    MQTT payload
//	gpio-relay  enabled/disabled only                                    GPIO output line
//
// # Usage
//
//	reg := instance.NewRegistry()
//	device.Register(reg, device.Deps{MQTT: mqttClient, GPIO: chip})
//
// # Fades
//
// A fade is a chain of scheduler entries tagged "<name>_fade". Every tick
// derives the level from the elapsed time, so a late tick catches up
// instead of drifting. A fade stops when the device is disabled, when a
// rule change moves the level the other way, or when the rule stops being
// a number.
package device
