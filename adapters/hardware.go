package adapters

import (
	"context"
	"fmt"
	"os"
	"sync"

	"mqtt-device-agent/application"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type PinMode string

const (
	// PinModeToggle cycles through Values on every read, "0"/"1" by default.
	PinModeToggle PinMode = "toggle"
	// PinModeFixed always reads Value.
	PinModeFixed PinMode = "fixed"
	// PinModeEcho reads back the last written value, starting at Value.
	PinModeEcho PinMode = "echo"
)

// HardwareProfile describes the simulated pin behind each variable name.
//
//	pins:
//	  temp:
//	    mode: fixed
//	    value: "21.5"
//	    save: true
//	  led:
//	    mode: echo
//	    value: "0"
type HardwareProfile struct {
	Pins map[string]PinProfile `yaml:"pins"`
}

type PinProfile struct {
	Mode   PinMode  `yaml:"mode"`
	Value  string   `yaml:"value"`
	Values []string `yaml:"values"`
	Save   bool     `yaml:"save"`
}

// LoadHardwareProfile reads a profile from path. An empty path yields an empty
// profile where every pin toggles.
func LoadHardwareProfile(path string) (*HardwareProfile, error) {
	profile := &HardwareProfile{Pins: map[string]PinProfile{}}
	if path == "" {
		return profile, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading hardware profile: %w", err)
	}

	if err := yaml.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("parsing hardware profile: %w", err)
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("validating hardware profile: %w", err)
	}

	return profile, nil
}

func (p *HardwareProfile) Validate() error {
	if p.Pins == nil {
		p.Pins = map[string]PinProfile{}
	}

	for name, pin := range p.Pins {
		switch pin.Mode {
		case "", PinModeToggle, PinModeFixed, PinModeEcho:
		default:
			return fmt.Errorf("pin %q: unknown mode %q", name, pin.Mode)
		}
	}
	return nil
}

type SimulatedIOParams struct {
	Profile *HardwareProfile

	Log zerolog.Logger
}

// SimulatedIO stands in for the digital I/O driver. It is safe for concurrent use.
type SimulatedIO struct {
	profile *HardwareProfile

	mu      sync.Mutex
	written map[string]string
	reads   map[string]int

	log zerolog.Logger
}

func NewSimulatedIO(params SimulatedIOParams) *SimulatedIO {
	profile := params.Profile
	if profile == nil {
		profile = &HardwareProfile{Pins: map[string]PinProfile{}}
	}

	return &SimulatedIO{
		profile: profile,
		written: make(map[string]string),
		reads:   make(map[string]int),
		log:     params.Log,
	}
}

func (s *SimulatedIO) Read(ctx context.Context, v *application.Variable) (application.Reading, error) {
	if err := ctx.Err(); err != nil {
		return application.Reading{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pin := s.profile.Pins[v.Name]
	reading := application.Reading{Persist: pin.Save}

	switch pin.Mode {
	case PinModeFixed:
		reading.Value = pin.Value
	case PinModeEcho:
		reading.Value = pin.Value
		if value, ok := s.written[v.Name]; ok {
			reading.Value = value
		}
	default:
		values := pin.Values
		if len(values) == 0 {
			values = []string{"0", "1"}
		}
		n := s.reads[v.Name]
		s.reads[v.Name] = n + 1
		reading.Value = values[n%len(values)]
	}

	s.log.Debug().Str("pin", v.Name).Str("value", reading.Value).Msg("pin read")
	return reading, nil
}

func (s *SimulatedIO) Write(ctx context.Context, v *application.Variable, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.written[v.Name] = value
	s.mu.Unlock()

	s.log.Info().Str("pin", v.Name).Str("value", value).Msg("pin set")
	return nil
}

// Value returns the last value written to a pin.
func (s *SimulatedIO) Value(name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.written[name]
	return value, ok
}

var _ application.HardwareIO = &SimulatedIO{}
