package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kardianos/service"
	"github.com/rs/zerolog/log"

	"github.com/bigjimnolan/onvifbridge/controller"
)

const stopTimeout = 15 * time.Second

// program adapts controller.Run to the kardianos/service lifecycle.
type program struct {
	settings controller.Settings

	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(s service.Service) error {
	// Start must not block.
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
	return nil
}

func (p *program) run(ctx context.Context) {
	defer close(p.done)
	if err := controller.Run(ctx, p.settings); err != nil {
		log.Fatal().Msgf("%v", err)
	}
}

func (p *program) Stop(s service.Service) error {
	log.Info().Msg("Stopping service...")
	if p.cancel == nil {
		return nil
	}
	p.cancel()
	select {
	case <-p.done:
		return nil
	case <-time.After(stopTimeout):
		return errors.New("timed out waiting for camera agents to stop")
	}
}

func serviceConfig(settings controller.Settings) *service.Config {
	return &service.Config{
		Name:        "moe",
		DisplayName: "ONVIF Motion Events",
		Description: "Forwards ONVIF camera motion events to Motion",
		Arguments:   serviceArguments(settings),
	}
}

// serviceArguments rebuilds the command line the service manager starts the
// binary with. Empty optional settings are left out.
func serviceArguments(settings controller.Settings) []string {
	args := []string{
		"--motion-base-url", settings.MotionBaseURL,
		"--config-file", settings.ConfigFile,
		"--timeout", strconv.FormatInt(settings.DefaultOffDelay.Milliseconds(), 10),
		"--retry-delay", strconv.FormatInt(settings.DefaultRetryDelay.Milliseconds(), 10),
	}
	optional := []struct{ flag, value string }{
		{"--log-level", settings.LogLevel},
		{"--log-format", settings.LogFormat},
		{"--mqtt-url", settings.MQTTURL},
		{"--mqtt-listen", settings.MQTTListen},
		{"--mqtt-topic-prefix", settings.MQTTTopicPrefix},
		{"--kafka-topic", settings.KafkaTopic},
		{"--status-addr", settings.StatusAddr},
	}
	for _, o := range optional {
		if o.value != "" {
			args = append(args, o.flag, o.value)
		}
	}
	for _, b := range settings.KafkaBrokers {
		args = append(args, "--kafka-brokers", b)
	}
	return args
}

// runService either performs a service control action or runs the bridge
// under the service manager (or interactively).
func runService(settings controller.Settings, action string) error {
	if settings.MotionBaseURL == "" && (action == "" || action == "install") {
		return errors.New("--motion-base-url is required")
	}

	s, err := service.New(&program{settings: settings}, serviceConfig(settings))
	if err != nil {
		return err
	}

	if action != "" {
		if err := service.Control(s, action); err != nil {
			return fmt.Errorf("failed to %s service: %w", action, err)
		}
		log.Info().Msgf("Service action '%s' completed successfully", action)
		return nil
	}

	return s.Run()
}
