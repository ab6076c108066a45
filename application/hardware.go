package application

import "context"

// Reading is one sensor sample. Persist marks it for durable storage downstream.
type Reading struct {
	Value   string
	Persist bool
}

// HardwareIO reads sensors and drives actuators for configured variables.
type HardwareIO interface {
	Read(ctx context.Context, v *Variable) (Reading, error)
	Write(ctx context.Context, v *Variable, value string) error
}
