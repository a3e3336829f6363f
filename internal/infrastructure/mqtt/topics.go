package mqtt

import "fmt"

// TopicPrefix is the root of every meterthing topic.
const TopicPrefix = "meterthing"

// Topics provides builders for meterthing MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.PropertyState("smart-meter-1", "1.0.1.8.0.255")
//	// Returns: "meterthing/state/smart-meter-1/1.0.1.8.0.255"
//
// Property names are dotted register codes and contain no "/", "+" or "#",
// so they are safe as topic levels.
type Topics struct{}

// =============================================================================
// Inbound
// =============================================================================

// Readings returns the topic the meter decoder publishes polls on.
//
// Example: meterthing/readings/smart-meter-1
func (Topics) Readings(slug string) string {
	return fmt.Sprintf("%s/readings/%s", TopicPrefix, slug)
}

// =============================================================================
// Outbound
// =============================================================================

// ThingDescription returns the retained Web Thing description topic.
//
// Example: meterthing/thing/smart-meter-1
func (Topics) ThingDescription(slug string) string {
	return fmt.Sprintf("%s/thing/%s", TopicPrefix, slug)
}

// PropertyState returns the retained topic for one property value.
//
// Example: meterthing/state/smart-meter-1/1.0.1.8.0.255
func (Topics) PropertyState(slug, property string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, slug, property)
}

// AllPropertyStates returns a wildcard matching every property of a thing.
//
// Example: meterthing/state/smart-meter-1/+
func (Topics) AllPropertyStates(slug string) string {
	return fmt.Sprintf("%s/state/%s/+", TopicPrefix, slug)
}

// Health returns the retained bridge health topic.
//
// Example: meterthing/health/smart-meter-1
func (Topics) Health(slug string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, slug)
}

// SystemStatus returns the online/offline status topic, also used as the
// Last Will topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AllTopics returns a wildcard for every meterthing topic.
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
