package influxdb

import (
	"fmt"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the node.
const (
	MeasurementSensorReading = "sensor_reading"
	MeasurementRuleChange    = "rule_change"
	MeasurementGroupState    = "group_state"
)

// WriteSensorReading records a raw sensor value such as a thermostat
// temperature. Non-blocking.
func (c *Client) WriteSensorReading(instance, quantity string, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newSensorReadingPoint(instance, quantity, value, ts))
}

// WriteRuleChange records a rule transition of an instance.
func (c *Client) WriteRuleChange(instance, typ string, rule any, scheduled bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newRuleChangePoint(instance, typ, rule, scheduled, ts))
}

// WriteGroupState records the action a group applied.
func (c *Client) WriteGroupState(group string, on bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(newGroupStatePoint(group, on, ts))
}

func newSensorReadingPoint(instance, quantity string, value float64, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementSensorReading,
		map[string]string{
			"instance": instance,
			"quantity": quantity,
		},
		map[string]any{
			"value": value,
		},
		ts,
	)
}

// newRuleChangePoint stores numeric rules as a float field and everything
// else as a string field, so the two never conflict in one series.
func newRuleChangePoint(instance, typ string, rule any, scheduled bool, ts time.Time) *write.Point {
	fields := map[string]any{
		"scheduled": scheduled,
	}
	switch v := rule.(type) {
	case int:
		fields["value"] = float64(v)
	case float64:
		fields["value"] = v
	default:
		fields["rule"] = fmt.Sprint(v)
	}
	return write.NewPoint(
		MeasurementRuleChange,
		map[string]string{
			"instance": instance,
			"type":     typ,
		},
		fields,
		ts,
	)
}

func newGroupStatePoint(group string, on bool, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementGroupState,
		map[string]string{"group": group},
		map[string]any{"on": on},
		ts,
	)
}
