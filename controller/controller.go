package controller

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/bigjimnolan/onvifbridge/cameraservice"
	"github.com/bigjimnolan/onvifbridge/kafkaservice"
	"github.com/bigjimnolan/onvifbridge/motionservice"
	"github.com/bigjimnolan/onvifbridge/mqttservice"
	"github.com/bigjimnolan/onvifbridge/onvifservice"
	"github.com/bigjimnolan/onvifbridge/statusservice"
)

const DefaultKafkaTopic = "onvifbridge.motion"

// SetLogLevel maps the configured level onto zerolog. Unknown values mean warn.
func SetLogLevel(logLevel string) {
	switch strings.ToLower(logLevel) {
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	}
}

// SetLogFormat switches the global logger between JSON and console output.
func SetLogFormat(format string) {
	if strings.ToLower(format) == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// ONVIFDialer adapts the ONVIF client to the agent's Dialer.
func ONVIFDialer(client *onvifservice.Client) cameraservice.Dialer {
	return func(ctx context.Context, cfg cameraservice.CameraConfig) (cameraservice.Session, error) {
		session, err := client.Connect(ctx, cfg.Endpoint())
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// Run loads the cameras, wires the notifiers and runs the fleet until ctx is
// done. Only configuration problems are returned as errors.
func Run(ctx context.Context, settings Settings) error {
	if settings.MotionBaseURL == "" {
		return errors.New("motion base URL is required")
	}

	cameras, err := LoadCameras(settings.ConfigFile, settings.DefaultOffDelay, settings.DefaultRetryDelay)
	if err != nil {
		return fmt.Errorf("unable to read or parse config file at %s: %w", settings.ConfigFile, err)
	}
	log.Info().Msgf("Loaded %d cameras from %s", len(cameras), settings.ConfigFile)

	notifiers, closeNotifiers, err := buildNotifiers(settings)
	if err != nil {
		return err
	}
	defer closeNotifiers()

	fleet := NewFleet(cameras, ONVIFDialer(onvifservice.NewClient()), notifiers)

	var g errgroup.Group
	g.Go(func() error {
		return fleet.Run(ctx)
	})

	if settings.StatusAddr != "" {
		status := &statusservice.StatusService{Addr: settings.StatusAddr, Fleet: fleet}
		g.Go(func() error {
			// The bridge keeps working without its status endpoint.
			if err := status.Start(ctx); err != nil {
				log.Error().Msgf("Status Service Failed to Start %v", err)
			}
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("All services stopped")
	return err
}

// buildNotifiers returns the Motion notifier plus whichever optional sinks
// are configured, and a func releasing them.
func buildNotifiers(settings Settings) (fanout, func(), error) {
	sinks := fanout{motionservice.New(settings.MotionBaseURL)}
	var closers []func() error

	switch {
	case settings.MQTTListen != "":
		broker := &mqttservice.MQTTService{
			ID:          "onvifbridge",
			Address:     settings.MQTTListen,
			TopicPrefix: settings.MQTTTopicPrefix,
		}
		if err := broker.Start(); err != nil {
			return nil, nil, fmt.Errorf("starting embedded MQTT broker: %w", err)
		}
		closers = append(closers, broker.Close)
		sinks = append(sinks, mqttservice.NewInlinePublisher(broker, settings.MQTTTopicPrefix))
	case settings.MQTTURL != "":
		log.Info().Msgf("Publishing motion states to MQTT broker %s", settings.MQTTURL)
		sinks = append(sinks, mqttservice.NewRemotePublisher(settings.MQTTURL, settings.MQTTTopicPrefix))
	}

	if len(settings.KafkaBrokers) > 0 {
		topic := settings.KafkaTopic
		if topic == "" {
			topic = DefaultKafkaTopic
		}
		producer, err := kafkaservice.NewProducer(settings.KafkaBrokers, topic)
		if err != nil {
			// Kafka is an extra sink; Motion still gets its events.
			log.Error().Msgf("Kafka disabled: %v", err)
		} else {
			closers = append(closers, producer.Close)
			sinks = append(sinks, producer)
		}
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Msgf("closing notifier: %v", err)
			}
		}
	}
	return sinks, closeAll, nil
}
