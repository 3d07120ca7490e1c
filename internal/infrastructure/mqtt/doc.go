// Package mqtt provides MQTT client connectivity for a Gray Logic node.
//
// The node uses MQTT three ways:
//   - dimmer and relay drivers publish commands to their configured topics
//   - thermostat sensors subscribe to temperature topics
//   - instance state is published retained under graylogic/node/{id}/state
//
// Availability is reported on graylogic/node/{id}/status: "online" after
// every connect, "offline" on graceful shutdown, and the same topic is the
// Last Will for crashes.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Node.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("zigbee2mqtt/hall_temp", 1,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
//
// # Security Considerations
//
//   - Enable TLS (mqtt.broker.tls) when the broker is not on localhost
//   - Credentials should come from GRAYLOGIC_MQTT_USERNAME/PASSWORD
package mqtt
