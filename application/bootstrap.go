package application

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

type BootstrapperParams struct {
	Provisioner Provisioner

	// MaxVariables caps the number of variables kept from a response.
	MaxVariables int

	Log zerolog.Logger
}

// Bootstrapper obtains the device configuration from the provisioning endpoint.
// It is one-shot: retrying is up to the caller.
type Bootstrapper struct {
	params BootstrapperParams

	log zerolog.Logger
}

func NewBootstrapper(params BootstrapperParams) (*Bootstrapper, error) {
	if params.Provisioner == nil {
		return nil, fmt.Errorf("Provisioner is nil")
	}
	if params.MaxVariables <= 0 {
		params.MaxVariables = DefaultMaxVariables
	}

	return &Bootstrapper{params: params, log: params.Log}, nil
}

// FetchConfiguration requests and parses a fresh configuration. On success the
// returned configuration is valid; on failure nothing is returned, so a
// configuration already in use is never touched.
func (b *Bootstrapper) FetchConfiguration(ctx context.Context) (*DeviceConfiguration, error) {
	b.log.Info().Msg("getting credentials")

	body, err := b.params.Provisioner.RequestConfiguration(ctx)
	if err != nil {
		return nil, bootstrapError(err)
	}

	b.log.Debug().Int("bytes", len(body)).Msg("provisioning response received")

	cfg, outcome, err := ParseConfiguration(body, b.params.MaxVariables)
	if err != nil {
		return nil, bootstrapError(err)
	}

	if err := outcome.Err(); err != nil {
		b.log.Warn().Err(err).
			Int("kept", len(cfg.Variables)).
			Int("received", outcome.SourceVariables).
			Msg("variables beyond capacity dropped")
	}
	if len(outcome.UnknownKinds) > 0 {
		b.log.Warn().Strs("variables", outcome.UnknownKinds).Msg("unknown variable type, treating as actuator")
	}
	if len(outcome.Skipped) > 0 {
		b.log.Warn().Strs("variables", outcome.Skipped).Msg("variables with empty or duplicate name skipped")
	}

	if !outcome.HasIdentity() {
		return nil, fmt.Errorf("%w: incomplete configuration, missing %s", ErrBootstrap, strings.Join(outcome.MissingFields, ", "))
	}

	cfg.IsValid = true
	b.logConfiguration(cfg)

	return cfg, nil
}

func (b *Bootstrapper) logConfiguration(cfg *DeviceConfiguration) {
	b.log.Info().
		Str("username", cfg.Username).
		Str("topic", cfg.TopicPrefix).
		Int("variables", len(cfg.Variables)).
		Msg("mqtt credentials obtained")

	for i, v := range cfg.Variables {
		ev := b.log.Info().
			Int("index", i).
			Str("variable", v.Name).
			Str("full_name", v.DisplayName).
			Stringer("type", v.Kind)
		if v.SendFrequencySeconds > 0 {
			ev = ev.Int("send_freq", v.SendFrequencySeconds)
		}
		ev.Msg("variable")
	}
}

func bootstrapError(err error) error {
	if errors.Is(err, ErrBootstrap) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrBootstrap, err)
}
