package mqttservice

import (
	"bytes"
	"strings"

	"github.com/rs/zerolog/log"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"
)

type MotionHookOptions struct {
	TopicPrefix string
}

// MotionHook logs broker activity and every motion state that passes
// through the embedded broker.
type MotionHook struct {
	mqtt.HookBase
	prefix string
}

func (h *MotionHook) ID() string {
	return "motion-events"
}

func (h *MotionHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnect,
		mqtt.OnDisconnect,
		mqtt.OnPublished,
	}, []byte{b})
}

func (h *MotionHook) Init(config any) error {
	if config == nil {
		h.prefix = DefaultTopicPrefix
		return nil
	}
	opts, ok := config.(*MotionHookOptions)
	if !ok {
		return mqtt.ErrInvalidConfigType
	}
	h.prefix = opts.TopicPrefix
	if h.prefix == "" {
		h.prefix = DefaultTopicPrefix
	}
	return nil
}

func (h *MotionHook) OnConnect(cl *mqtt.Client, pk packets.Packet) error {
	log.Info().Msgf("mqtt client connected: %s", cl.ID)
	return nil
}

func (h *MotionHook) OnDisconnect(cl *mqtt.Client, err error, expire bool) {
	if err != nil {
		log.Info().Msgf("mqtt client disconnected: %s (%v)", cl.ID, err)
		return
	}
	log.Info().Msgf("mqtt client disconnected: %s", cl.ID)
}

func (h *MotionHook) OnPublished(cl *mqtt.Client, pk packets.Packet) {
	if !strings.HasPrefix(pk.TopicName, h.prefix+"/") {
		return
	}
	log.Debug().Msgf("motion state published on %s: %s", pk.TopicName, string(pk.Payload))
}
