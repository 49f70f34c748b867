// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

package mqttservice

import (
	"github.com/rs/zerolog/log"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
)

// MQTTService is an embedded broker for installs that do not run one.
// Motion states are published into it through the inline client.
type MQTTService struct {
	ID          string `json:"ID"`
	Address     string `json:"Address"`
	TopicPrefix string `json:"TopicPrefix"`

	server *mqtt.Server
}

// Start brings the broker up without blocking. An empty Address runs the
// broker with the inline client only.
func (mqt *MQTTService) Start() error {
	server := mqtt.New(&mqtt.Options{
		InlineClient: true, // you must enable inline client to use direct publishing and subscribing.
	})

	_ = server.AddHook(new(auth.AllowHook), nil)

	if mqt.Address != "" {
		log.Info().Msgf("Starting MQTT server on %s %s", mqt.ID, mqt.Address)
		tcp := listeners.NewTCP(listeners.Config{
			ID:      mqt.ID,
			Address: mqt.Address,
		})
		if err := server.AddListener(tcp); err != nil {
			return err
		}
	}

	err := server.AddHook(new(MotionHook), &MotionHookOptions{
		TopicPrefix: mqt.TopicPrefix,
	})
	if err != nil {
		return err
	}

	if err := server.Serve(); err != nil {
		return err
	}
	mqt.server = server
	return nil
}

// Publish sends a message from the inline client.
func (mqt *MQTTService) Publish(topic string, payload []byte, retain bool) error {
	if mqt.server == nil {
		return ErrNotConnected
	}
	return mqt.server.Publish(topic, payload, retain, 0)
}

// Subscribe registers an inline subscription, mostly useful for local consumers.
func (mqt *MQTTService) Subscribe(filter string, id int, handler mqtt.InlineSubFn) error {
	if mqt.server == nil {
		return ErrNotConnected
	}
	return mqt.server.Subscribe(filter, id, handler)
}

// Close stops the listeners and disconnects clients.
func (mqt *MQTTService) Close() error {
	if mqt.server == nil {
		return nil
	}
	mqt.server.Log.Warn("stopping embedded broker")
	err := mqt.server.Close()
	mqt.server.Log.Info("embedded broker stopped")
	return err
}
