package cameraservice

import (
	"context"
	"errors"
	"sync"

	"github.com/bigjimnolan/onvifbridge/onvifservice"
)

// fakeSession delivers whatever is pushed on its channel. Closing the
// channel simulates the camera dropping the subscription.
type fakeSession struct {
	messages chan onvifservice.Message
	closed   chan struct{}
	once     sync.Once
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		messages: make(chan onvifservice.Message),
		closed:   make(chan struct{}),
	}
}

func (s *fakeSession) Events(ctx context.Context, handle func(onvifservice.Message)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-s.messages:
			if !ok {
				return errors.New("connection reset by peer")
			}
			handle(m)
		}
	}
}

func (s *fakeSession) Close(context.Context) error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func motionMessage(value string) onvifservice.Message {
	return onvifservice.Message{
		Topic: "tns1:" + MotionTopic,
		Data:  map[string]string{MotionItem: value},
	}
}

// recordingNotifier keeps every call it receives.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
	failOn map[string]error
}

func (n *recordingNotifier) record(kind, cameraID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, kind+":"+cameraID)
	return n.failOn[kind]
}

func (n *recordingNotifier) EventStart(_ context.Context, cameraID string) error {
	return n.record("start", cameraID)
}

func (n *recordingNotifier) EventEnd(_ context.Context, cameraID string) error {
	return n.record("end", cameraID)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}
