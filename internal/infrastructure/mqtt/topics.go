package mqtt

import "fmt"

// TopicPrefixNode is the base for all node topics.
const TopicPrefixNode = "graylogic/node"

// Topics provides builders for node MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.InstanceState("hall", "device1")
//	// Returns: "graylogic/node/hall/state/device1"
type Topics struct{}

// NodeStatus returns the retained availability topic, also used as LWT.
//
// Example: graylogic/node/hall/status
func (Topics) NodeStatus(nodeID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixNode, nodeID)
}

// InstanceState returns the retained attribute snapshot topic for one
// instance.
//
// Example: graylogic/node/hall/state/device1
func (Topics) InstanceState(nodeID, instance string) string {
	return fmt.Sprintf("%s/%s/state/%s", TopicPrefixNode, nodeID, instance)
}

// GroupState returns the retained state topic for one group.
//
// Example: graylogic/node/hall/group/group1
func (Topics) GroupState(nodeID, group string) string {
	return fmt.Sprintf("%s/%s/group/%s", TopicPrefixNode, nodeID, group)
}

// AllInstanceStates returns a pattern matching every instance state of a
// node.
//
// Pattern: graylogic/node/hall/state/+
func (Topics) AllInstanceStates(nodeID string) string {
	return fmt.Sprintf("%s/%s/state/+", TopicPrefixNode, nodeID)
}
