package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mqtt-device-agent/adapters"
	"mqtt-device-agent/application"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

var Flags = []cli.Flag{
	FlagLogLevel,
	FlagLogWriter,
	FlagProvisioningURL,
	FlagProvisioningPath,
	FlagDeviceID,
	FlagDeviceSecret,
	FlagMQTTUrl,
	FlagMQTTClientID,
	FlagMQTTQoS,
	FlagConnectAttempts,
	FlagConnectTimeout,
	FlagRetryDelay,
	FlagCycleInterval,
	FlagBootstrapInterval,
	FlagReportInterval,
	FlagMaxVariables,
	FlagMaxTopicLength,
	FlagHardwareProfile,
}

func main() {
	var logger zerolog.Logger

	app := newApp(&logger)
	if err := app.Run(os.Args); err != nil {
		logger.Err(err).Msg("agent terminated")
		os.Exit(1)
	}
}

// newApp builds the cli application. Before sets *logger, so it is only
// usable once the app has started running.
func newApp(logger *zerolog.Logger) *cli.App {
	return &cli.App{
		Name:    "mqtt-device-agent",
		Usage:   "bootstrap device credentials and sync variables over mqtt",
		Version: "v0.0.1",
		Flags:   Flags,
		Before: func(ctx *cli.Context) error {
			var logWriter io.Writer
			switch ctx.String(FlagLogWriter.Name) {
			case "console":
				logWriter = zerolog.ConsoleWriter{
					Out:        os.Stderr,
					TimeFormat: time.RFC3339Nano,
				}
			case "json":
				logWriter = os.Stderr
			default:
				return fmt.Errorf("invalid log writer")
			}

			*logger = zerolog.New(logWriter).With().Timestamp().
				Str("service", "mqtt-device-agent").
				Str("module", "main").
				Logger()

			level, err := zerolog.ParseLevel(ctx.String(FlagLogLevel.Name))
			if err != nil {
				return err
			}

			zerolog.SetGlobalLevel(level)

			return nil
		},
		Action: func(ctx *cli.Context) error {
			logger.Info().Msg("agent starting...")

			appCtx, cancel := context.WithCancel(logger.WithContext(context.Background()))
			defer cancel()
			go func() {
				c := make(chan os.Signal, 1)
				signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

				<-c

				logger.Warn().Msg("interrupt signal received")
				cancel()
			}()

			adapters.SetPahoLogger(logger.With().Str("module", "paho").Logger())

			profile, err := adapters.LoadHardwareProfile(ctx.Path(FlagHardwareProfile.Name))
			if err != nil {
				return err
			}

			hardware := adapters.NewSimulatedIO(adapters.SimulatedIOParams{
				Profile: profile,
				Log:     logger.With().Str("module", "hardware").Logger(),
			})

			provisioningClient, err := adapters.NewProvisioningClient(adapters.ProvisioningClientParams{
				URL:          ctx.String(FlagProvisioningURL.Name),
				Path:         ctx.String(FlagProvisioningPath.Name),
				DeviceID:     ctx.String(FlagDeviceID.Name),
				DeviceSecret: ctx.String(FlagDeviceSecret.Name),
				Log:          logger.With().Str("module", "provisioning-client").Logger(),
			})
			if err != nil {
				return err
			}

			bootstrapper, err := application.NewBootstrapper(application.BootstrapperParams{
				Provisioner:  provisioningClient,
				MaxVariables: ctx.Int(FlagMaxVariables.Name),
				Log:          logger.With().Str("module", "bootstrap").Logger(),
			})
			if err != nil {
				return err
			}

			mqttClient := adapters.NewMQTTClient(adapters.MQTTClientParams{
				ClientID:       ctx.String(FlagMQTTClientID.Name),
				MQTTUrl:        ctx.String(FlagMQTTUrl.Name),
				ConnectTimeout: ctx.Duration(FlagConnectTimeout.Name),
				Log:            logger.With().Str("module", "mqtt-client").Logger(),
			})
			defer mqttClient.Close()

			session, err := application.NewSessionManager(application.SessionManagerParams{
				Engine:             mqttClient,
				MaxConnectAttempts: ctx.Int(FlagConnectAttempts.Name),
				ConnectTimeout:     ctx.Duration(FlagConnectTimeout.Name),
				RetryDelay:         ctx.Duration(FlagRetryDelay.Name),
				MaxTopicLength:     ctx.Int(FlagMaxTopicLength.Name),
				QoS:                byte(ctx.Uint(FlagMQTTQoS.Name)),
				Log:                logger.With().Str("module", "session").Logger(),
			})
			if err != nil {
				return err
			}

			synchronizer, err := application.NewSynchronizer(application.SynchronizerParams{
				Session:  session,
				Hardware: hardware,
				Log:      logger.With().Str("module", "synchronizer").Logger(),
			})
			if err != nil {
				return err
			}

			agent, err := application.NewAgentService(application.AgentServiceParams{
				Configuration:     bootstrapper,
				Session:           session,
				Synchronizer:      synchronizer,
				BootstrapInterval: ctx.Duration(FlagBootstrapInterval.Name),
				ReconnectInterval: ctx.Duration(FlagRetryDelay.Name),
				CycleInterval:     ctx.Duration(FlagCycleInterval.Name),
				ReportInterval:    ctx.Duration(FlagReportInterval.Name),
				Log:               logger.With().Str("module", "agent").Logger(),
			})
			if err != nil {
				return err
			}

			logger.Info().Msg("agent started")
			err = agent.Run(appCtx)
			if err != nil {
				return err
			}

			logger.Info().Msg("agent terminating...")
			return nil
		},
	}
}
