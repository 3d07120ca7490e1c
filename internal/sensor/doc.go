// Package sensor implements the node's trigger types.
//
// Each type is an instance.SensorVariant registered under its _type:
//
//	pir         reset delay in minutes    GPIO rising edges
//	switch      enabled/disabled only     GPIO level
//	dummy       "on" or "off"             none
//	thermostat  setpoint                  MQTT temperature topic
//
// GPIO and MQTT handlers run on their own goroutines. They only record
// what arrived, under a small mutex, and ask the scheduler to run the
// rest; the vote is re-evaluated inside a scheduler callback holding the
// command lock.
package sensor
