package kafkaservice

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// MotionEvent is the JSON value written for every transition.
type MotionEvent struct {
	Camera string    `json:"camera"`
	Event  string    `json:"event"`
	Time   time.Time `json:"time"`
}

// Producer publishes motion transitions to a Kafka topic, keyed by camera so
// that one camera's events stay ordered within a partition.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
}

// NewProducer connects a synchronous producer to brokers.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.ClientID = "onvifbridge"

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("creating Kafka producer: %w", err)
	}
	return NewProducerFrom(producer, topic), nil
}

// NewProducerFrom wraps an existing SyncProducer.
func NewProducerFrom(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: producer, topic: topic, now: time.Now}
}

func (p *Producer) EventStart(ctx context.Context, cameraID string) error {
	return p.send(ctx, cameraID, "start")
}

func (p *Producer) EventEnd(ctx context.Context, cameraID string) error {
	return p.send(ctx, cameraID, "end")
}

func (p *Producer) send(ctx context.Context, cameraID, event string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(MotionEvent{Camera: cameraID, Event: event, Time: p.now().UTC()})
	if err != nil {
		return err
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(cameraID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("kafka %s for camera %s: %w", event, cameraID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}
