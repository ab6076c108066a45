package application

import "fmt"

const (
	DefaultMaxVariables    = 5
	DefaultMaxTopicLength  = 128
	MaxStringLength        = 100
	SensorTopicSuffix      = "/sdata"
	ActuatorTopicSuffix    = "/actdata"
	actuatorWildcardSuffix = "+" + ActuatorTopicSuffix
)

type VariableKind int

const (
	VariableKindSensor VariableKind = iota
	VariableKindActuator
)

func (k VariableKind) String() string {
	switch k {
	case VariableKindSensor:
		return "sensor"
	case VariableKindActuator:
		return "actuator"
	default:
		return fmt.Sprintf("VariableKind(%d)", int(k))
	}
}

// Variable is a named point of telemetry (sensor) or control (actuator).
type Variable struct {
	Name                 string
	DisplayName          string
	Kind                 VariableKind
	SendFrequencySeconds int

	LastValue      string
	PendingPersist bool
}

// DeviceConfiguration is the operating configuration obtained from the
// provisioning endpoint. It is replaced wholesale on every successful
// bootstrap and is owned by the agent loop.
type DeviceConfiguration struct {
	Username    string
	Password    string
	TopicPrefix string
	Variables   []*Variable

	IsValid bool
}

// Credentials returns the broker session identity of the configuration.
func (c *DeviceConfiguration) Credentials() Credentials {
	return Credentials{Username: c.Username, Password: c.Password}
}

// Variable returns the variable with the given name, or nil.
func (c *DeviceConfiguration) Variable(name string) *Variable {
	for _, v := range c.Variables {
		if v.Name == name {
			return v
		}
	}
	return nil
}

type Credentials struct {
	Username string
	Password string
}
