package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultBootstrapInterval = 5 * time.Second
	DefaultReconnectInterval = 500 * time.Millisecond
	DefaultCycleInterval     = 500 * time.Millisecond
	DefaultReportInterval    = 30 * time.Second
)

type ConfigurationSource interface {
	FetchConfiguration(ctx context.Context) (*DeviceConfiguration, error)
}

type SessionLifecycle interface {
	IsConnected() bool
	Status() MQTTStatus
	SetMessageHandler(handler MessageHandler)

	Connect(ctx context.Context, creds Credentials) error
	Reconnect(ctx context.Context, creds Credentials) error
	Process(ctx context.Context, d time.Duration) error
	Close()
}

type VariableSync interface {
	StartSession(cfg *DeviceConfiguration) error
	Sync(ctx context.Context, cfg *DeviceConfiguration)
	HandleMessage(ctx context.Context, cfg *DeviceConfiguration, topic string, payload []byte)
	Reset()
}

type AgentService interface {
	Run(ctx context.Context) error
}

type AgentServiceParams struct {
	Configuration ConfigurationSource
	Session       SessionLifecycle
	Synchronizer  VariableSync

	BootstrapInterval time.Duration
	ReconnectInterval time.Duration
	CycleInterval     time.Duration
	ReportInterval    time.Duration

	Log zerolog.Logger
}

func (p *AgentServiceParams) EnsureDefaults() {
	if p.BootstrapInterval <= 0 {
		p.BootstrapInterval = DefaultBootstrapInterval
	}

	if p.ReconnectInterval <= 0 {
		p.ReconnectInterval = DefaultReconnectInterval
	}

	if p.CycleInterval <= 0 {
		p.CycleInterval = DefaultCycleInterval
	}

	if p.ReportInterval <= 0 {
		p.ReportInterval = DefaultReportInterval
	}
}

// agentService runs bootstrap, connect and synchronize phases, one per loop
// iteration. Everything below params is owned by the loop goroutine.
type agentService struct {
	params AgentServiceParams

	cfg *DeviceConfiguration

	// established is set once a session came up with the current configuration.
	// Until then connect attempts are bounded; afterwards they are not.
	established bool
	subscribed  bool
	rebootstrap bool

	log zerolog.Logger
}

func NewAgentService(params AgentServiceParams) (AgentService, error) {
	if params.Configuration == nil {
		return nil, fmt.Errorf("Configuration is nil")
	}
	if params.Session == nil {
		return nil, fmt.Errorf("Session is nil")
	}
	if params.Synchronizer == nil {
		return nil, fmt.Errorf("Synchronizer is nil")
	}
	params.EnsureDefaults()

	return &agentService{params: params, log: params.Log}, nil
}

func (a *agentService) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Msg("agent loop started")
		defer a.log.Info().Msg("agent loop stopped")

		return a.loop(ctx)
	})

	// connection status reporter
	g.Go(func() error {
		ticker := time.NewTicker(a.params.ReportInterval)
		defer ticker.Stop()

		lastStatus := MQTTStatus{}

	ReporterLoop:
		for {
			select {
			case <-ctx.Done():
				break ReporterLoop
			case <-ticker.C:
				newStatus := a.params.Session.Status()
				a.log.Info().
					Uint64("msg_since_last_report", newStatus.MessageCount-lastStatus.MessageCount).
					Uint64("msg_total", newStatus.MessageCount).
					Bool("is_connected", newStatus.Connected).
					Time("last_time_published", newStatus.LastTimePublished).
					Msg("publish report")
				lastStatus = newStatus
			}
		}

		return nil
	})

	return g.Wait()
}

func (a *agentService) loop(ctx context.Context) error {
	a.params.Session.SetMessageHandler(func(ctx context.Context, topic string, payload []byte) {
		if a.cfg != nil {
			a.params.Synchronizer.HandleMessage(ctx, a.cfg, topic, payload)
		}
	})
	defer a.params.Session.Close()

	for {
		var err error
		switch {
		case a.cfg == nil || a.rebootstrap:
			err = a.bootstrap(ctx)
		case !a.params.Session.IsConnected():
			err = a.connect(ctx)
		default:
			err = a.cycle(ctx)
		}

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

func (a *agentService) bootstrap(ctx context.Context) error {
	cfg, err := a.params.Configuration.FetchConfiguration(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		a.log.Error().Err(err).Msg("bootstrap failed")

		if a.cfg != nil {
			a.log.Warn().Msg("keeping current configuration")
			a.rebootstrap = false
			return nil
		}
		return sleepContext(ctx, a.params.BootstrapInterval)
	}

	if a.cfg != nil {
		a.log.Info().Msg("replacing configuration")
		a.params.Session.Close()
	}

	a.cfg = cfg
	a.params.Synchronizer.Reset()
	a.established = false
	a.subscribed = false
	a.rebootstrap = false

	return nil
}

func (a *agentService) connect(ctx context.Context) error {
	creds := a.cfg.Credentials()

	if !a.established {
		if err := a.params.Session.Connect(ctx, creds); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			a.log.Error().Err(err).Msg("initial connect failed")
			if errors.Is(err, ErrTimeout) {
				// credentials may be stale
				a.rebootstrap = true
				return nil
			}
			return sleepContext(ctx, a.params.ReconnectInterval)
		}
	} else {
		a.log.Warn().Msg("session lost, reconnecting")
		if err := a.params.Session.Reconnect(ctx, creds); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			a.log.Error().Err(err).Msg("reconnect failed")
			return sleepContext(ctx, a.params.ReconnectInterval)
		}
	}

	a.established = true
	a.subscribed = false
	return nil
}

func (a *agentService) cycle(ctx context.Context) error {
	if !a.subscribed {
		if err := a.params.Synchronizer.StartSession(a.cfg); err != nil {
			a.log.Error().Err(err).Msg("subscribe failed")
		} else {
			a.subscribed = true
		}
	}

	a.params.Synchronizer.Sync(ctx, a.cfg)

	if err := a.params.Session.Process(ctx, a.params.CycleInterval); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Error().Err(err).Msg("session failed")
	}

	return nil
}

var (
	_ SessionLifecycle    = &SessionManager{}
	_ VariableSync        = &Synchronizer{}
	_ ConfigurationSource = &Bootstrapper{}
)
