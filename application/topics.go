package application

import "strings"

// SensorTopic returns the topic a sensor reading is published on.
//
// Example: dev/1/temp/sdata
func SensorTopic(prefix, variable string) string {
	return prefix + variable + SensorTopicSuffix
}

// ActuatorTopic returns the topic commands for one actuator arrive on.
//
// Example: dev/1/led/actdata
func ActuatorTopic(prefix, variable string) string {
	return prefix + variable + ActuatorTopicSuffix
}

// ActuatorSubscription returns the single-level wildcard covering every
// actuator of the device.
//
// Example: dev/1/+/actdata
func ActuatorSubscription(prefix string) string {
	return prefix + actuatorWildcardSuffix
}

// ActuatorVariable extracts the variable name from an actuator command topic.
// It reports false for topics outside the device prefix or without the
// actuator suffix.
func ActuatorVariable(prefix, topic string) (string, bool) {
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, ActuatorTopicSuffix) {
		return "", false
	}

	name := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), ActuatorTopicSuffix)
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
