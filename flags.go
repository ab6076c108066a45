package main

import (
	"mqtt-device-agent/adapters"
	"mqtt-device-agent/application"

	"github.com/urfave/cli/v2"
)

var FlagLogLevel = &cli.StringFlag{
	Name:     "log-level",
	EnvVars:  []string{"LOG_LEVEL"},
	Value:    "info",
	Required: false,
}

var FlagLogWriter = &cli.StringFlag{
	Name:     "log-writer",
	Usage:    "one of: [console, json]",
	EnvVars:  []string{"LOG_WRITER"},
	Value:    "console",
	Required: false,
}

var FlagProvisioningURL = &cli.StringFlag{
	Name:     "provisioning-url",
	Usage:    "http://server:3001",
	EnvVars:  []string{"PROVISIONING_URL"},
	Required: true,
}

var FlagProvisioningPath = &cli.StringFlag{
	Name:     "provisioning-path",
	EnvVars:  []string{"PROVISIONING_PATH"},
	Value:    adapters.ProvisioningDefaultPath,
	Required: false,
}

var FlagDeviceID = &cli.StringFlag{
	Name:     "device-id",
	Usage:    "device identifier sent to the provisioning server",
	EnvVars:  []string{"DEVICE_ID"},
	Required: true,
}

var FlagDeviceSecret = &cli.StringFlag{
	Name:     "device-secret",
	Usage:    "pre-shared device password",
	EnvVars:  []string{"DEVICE_SECRET"},
	Required: true,
}

var FlagMQTTUrl = &cli.StringFlag{
	Name:     "mqtt-url",
	Usage:    "tcp://broker:1883",
	EnvVars:  []string{"MQTT_URL"},
	Required: true,
}

var FlagMQTTClientID = &cli.StringFlag{
	Name:     "mqtt-client-id",
	EnvVars:  []string{"MQTT_CLIENT_ID"},
	Value:    "frdm_k64f_zephyr",
	Required: false,
}

var FlagMQTTQoS = &cli.UintFlag{
	Name:     "mqtt-qos",
	Usage:    "one of: [0, 1, 2]",
	EnvVars:  []string{"MQTT_QOS"},
	Value:    0,
	Required: false,
}

var FlagConnectAttempts = &cli.IntFlag{
	Name:    "connect-attempts",
	Usage:   "initial connect attempts before re-bootstrapping",
	EnvVars: []string{"CONNECT_ATTEMPTS"},
	Value:   application.DefaultMaxConnectAttempts,
}

var FlagConnectTimeout = &cli.DurationFlag{
	Name:    "connect-timeout",
	EnvVars: []string{"CONNECT_TIMEOUT"},
	Value:   application.DefaultConnectTimeout,
}

var FlagRetryDelay = &cli.DurationFlag{
	Name:    "retry-delay",
	EnvVars: []string{"RETRY_DELAY"},
	Value:   application.DefaultRetryDelay,
}

var FlagCycleInterval = &cli.DurationFlag{
	Name:    "cycle-interval",
	EnvVars: []string{"CYCLE_INTERVAL"},
	Value:   application.DefaultCycleInterval,
}

var FlagBootstrapInterval = &cli.DurationFlag{
	Name:    "bootstrap-interval",
	EnvVars: []string{"BOOTSTRAP_INTERVAL"},
	Value:   application.DefaultBootstrapInterval,
}

var FlagReportInterval = &cli.DurationFlag{
	Name:    "report-interval",
	EnvVars: []string{"REPORT_INTERVAL"},
	Value:   application.DefaultReportInterval,
}

var FlagMaxVariables = &cli.IntFlag{
	Name:    "max-variables",
	EnvVars: []string{"MAX_VARIABLES"},
	Value:   application.DefaultMaxVariables,
}

var FlagMaxTopicLength = &cli.IntFlag{
	Name:    "max-topic-length",
	EnvVars: []string{"MAX_TOPIC_LENGTH"},
	Value:   application.DefaultMaxTopicLength,
}

var FlagHardwareProfile = &cli.PathFlag{
	Name:    "hardware-profile",
	Usage:   "yaml file describing simulated pins",
	EnvVars: []string{"HARDWARE_PROFILE"},
}
