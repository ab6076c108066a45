package adapters

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"mqtt-device-agent/application"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "hardware.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadHardwareProfile(t *testing.T) {
	path := writeProfile(t, `
pins:
  temp:
    mode: fixed
    value: "21.5"
    save: true
  led:
    mode: echo
    value: "0"
  door:
    values: ["open", "closed"]
`)

	profile, err := LoadHardwareProfile(path)
	require.NoError(t, err)
	require.Len(t, profile.Pins, 3)

	assert.Equal(t, PinProfile{Mode: PinModeFixed, Value: "21.5", Save: true}, profile.Pins["temp"])
	assert.Equal(t, PinModeEcho, profile.Pins["led"].Mode)
	assert.Equal(t, []string{"open", "closed"}, profile.Pins["door"].Values)
}

func TestLoadHardwareProfile_Empty(t *testing.T) {
	profile, err := LoadHardwareProfile("")
	require.NoError(t, err)
	assert.Empty(t, profile.Pins)

	profile, err = LoadHardwareProfile(writeProfile(t, ""))
	require.NoError(t, err)
	assert.NotNil(t, profile.Pins)
}

func TestLoadHardwareProfile_Errors(t *testing.T) {
	_, err := LoadHardwareProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadHardwareProfile(writeProfile(t, "pins: [1, 2"))
	require.Error(t, err)

	_, err = LoadHardwareProfile(writeProfile(t, "pins:\n  led:\n    mode: pwm\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pwm")
}

func TestSimulatedIO(t *testing.T) {
	profile := &HardwareProfile{Pins: map[string]PinProfile{
		"temp": {Mode: PinModeFixed, Value: "21.5", Save: true},
		"led":  {Mode: PinModeEcho, Value: "0"},
		"door": {Values: []string{"open", "closed"}},
	}}

	sim := NewSimulatedIO(SimulatedIOParams{Profile: profile})
	ctx := context.Background()

	temp := &application.Variable{Name: "temp", Kind: application.VariableKindSensor}
	led := &application.Variable{Name: "led", Kind: application.VariableKindActuator}
	door := &application.Variable{Name: "door", Kind: application.VariableKindSensor}
	blink := &application.Variable{Name: "blink", Kind: application.VariableKindSensor}

	reading, err := sim.Read(ctx, temp)
	require.NoError(t, err)
	assert.Equal(t, application.Reading{Value: "21.5", Persist: true}, reading)

	reading, err = sim.Read(ctx, led)
	require.NoError(t, err)
	assert.Equal(t, "0", reading.Value)

	require.NoError(t, sim.Write(ctx, led, "1"))
	reading, err = sim.Read(ctx, led)
	require.NoError(t, err)
	assert.Equal(t, "1", reading.Value)

	value, ok := sim.Value("led")
	assert.True(t, ok)
	assert.Equal(t, "1", value)

	_, ok = sim.Value("temp")
	assert.False(t, ok)

	for _, expected := range []string{"open", "closed", "open"} {
		reading, err = sim.Read(ctx, door)
		require.NoError(t, err)
		assert.Equal(t, expected, reading.Value)
	}

	// pins missing from the profile toggle between 0 and 1
	for _, expected := range []string{"0", "1", "0"} {
		reading, err = sim.Read(ctx, blink)
		require.NoError(t, err)
		assert.Equal(t, expected, reading.Value)
		assert.False(t, reading.Persist)
	}
}

func TestSimulatedIO_Cancelled(t *testing.T) {
	sim := NewSimulatedIO(SimulatedIOParams{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := &application.Variable{Name: "led"}

	_, err := sim.Read(ctx, v)
	require.ErrorIs(t, err, context.Canceled)
	require.ErrorIs(t, sim.Write(ctx, v, "1"), context.Canceled)
}
