package mqttservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gosrc.io/mqtt"
)

const DefaultTopicPrefix = "onvifbridge"

// ErrNotConnected is returned when publishing before the broker is reachable.
var ErrNotConnected = errors.New("mqtt: not connected")

// MotionState is the retained JSON payload on {prefix}/{camera}/motion.
type MotionState struct {
	Camera string    `json:"camera"`
	State  string    `json:"state"`
	Time   time.Time `json:"time"`
}

// Publisher mirrors motion transitions onto MQTT as retained ON/OFF states.
type Publisher struct {
	TopicPrefix string

	publish func(topic string, payload []byte) error
	now     func() time.Time
}

// NewInlinePublisher publishes through an embedded broker.
func NewInlinePublisher(broker *MQTTService, prefix string) *Publisher {
	return newPublisher(prefix, func(topic string, payload []byte) error {
		return broker.Publish(topic, payload, true)
	})
}

// NewRemotePublisher connects to an external broker at address (host:port).
// The client manager keeps reconnecting in the background; publishes made
// before the first connection fail with ErrNotConnected.
func NewRemotePublisher(address, prefix string) *Publisher {
	client := mqtt.NewClient(address)
	client.ClientID = "onvifbridge-" + uuid.NewString()

	// Nothing is subscribed, but the client still wants somewhere to put
	// incoming messages.
	messages := make(chan mqtt.Message)
	client.Messages = messages
	go func() {
		for range messages {
		}
	}()

	var connected atomic.Bool
	postConnect := func(c *mqtt.Client) {
		log.Info().Msgf("mqtt Connected to %s", address)
		connected.Store(true)
	}
	cm := mqtt.NewClientManager(client, postConnect)
	go cm.Start()

	return newPublisher(prefix, func(topic string, payload []byte) error {
		if !connected.Load() {
			return ErrNotConnected
		}
		client.Publish(topic, payload)
		return nil
	})
}

func newPublisher(prefix string, publish func(string, []byte) error) *Publisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &Publisher{TopicPrefix: prefix, publish: publish, now: time.Now}
}

// Topic is where the state of cameraID is published.
func (p *Publisher) Topic(cameraID string) string {
	return p.TopicPrefix + "/" + cameraID + "/motion"
}

func (p *Publisher) EventStart(ctx context.Context, cameraID string) error {
	return p.send(ctx, cameraID, "ON")
}

func (p *Publisher) EventEnd(ctx context.Context, cameraID string) error {
	return p.send(ctx, cameraID, "OFF")
}

func (p *Publisher) send(ctx context.Context, cameraID, state string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(MotionState{Camera: cameraID, State: state, Time: p.now().UTC()})
	if err != nil {
		return err
	}
	if err := p.publish(p.Topic(cameraID), payload); err != nil {
		return fmt.Errorf("mqtt %s for camera %s: %w", state, cameraID, err)
	}
	return nil
}
