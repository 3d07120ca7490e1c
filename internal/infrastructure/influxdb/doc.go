// Package influxdb records node telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Three measurements
// are written, all tagged with the node ID:
//
//	sensor_reading  instance, quantity  value
//	rule_change     instance, type      value | rule, scheduled
//	group_state     group               on
//
// Writes are batched and non-blocking; failures arrive through SetOnError.
// A nil or closed client ignores writes, so callers need no guards when
// telemetry is disabled.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Node.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WriteSensorReading("sensor2", "temperature", 20.5, time.Now())
package influxdb
