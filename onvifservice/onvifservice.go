package onvifservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Client talks to ONVIF cameras. One Client is shared by every camera; all
// per-camera state lives in the Session it returns.
type Client struct {
	HTTP *resty.Client

	// PullTimeout is the long-poll window of each PullMessages request.
	PullTimeout time.Duration
	// MessageLimit caps the notifications returned per pull.
	MessageLimit int
	// TerminationTime is requested on subscribe and on every renew.
	TerminationTime time.Duration
}

// NewClient returns a Client with the defaults used in production.
func NewClient() *Client {
	c := &Client{
		PullTimeout:     5 * time.Second,
		MessageLimit:    32,
		TerminationTime: 60 * time.Second,
	}
	c.HTTP = resty.New().
		SetTimeout(c.PullTimeout + 10*time.Second).
		SetHeader("Accept", "application/soap+xml")
	return c
}

// Connect performs the subscription handshake: clock sync, event service
// discovery and pull point creation. The returned Session is live.
func (c *Client) Connect(ctx context.Context, ep Endpoint) (*Session, error) {
	creds := credentials{username: ep.Username, password: ep.Password}
	deviceURL := ep.DeviceURL()

	// The camera rejects digests whose Created stamp is too far from its own
	// clock, so read the clock first. This call needs no auth.
	b, err := c.call(ctx, deviceURL, buildEnvelope(credentials{}, "", "",
		`<GetSystemDateAndTime xmlns="`+nsDevice+`"/>`))
	if err != nil {
		return nil, fmt.Errorf("get system date and time: %w", err)
	}
	if b.DateTime != nil {
		if camTime, ok := b.DateTime.Time(); ok {
			creds.offset = time.Until(camTime)
		}
	}

	eventsURL := fmt.Sprintf("http://%s:%d/onvif/event_service", ep.Hostname, portOrDefault(ep.Port))
	b, err = c.call(ctx, deviceURL, buildEnvelope(creds, "", "",
		`<GetCapabilities xmlns="`+nsDevice+`"><Category>Events</Category></GetCapabilities>`))
	if err != nil {
		return nil, fmt.Errorf("get capabilities: %w", err)
	}
	if b.Capabilities != nil && b.Capabilities.EventsXAddr != "" {
		eventsURL = b.Capabilities.EventsXAddr
	} else {
		log.Debug().Msgf("%s: no events XAddr advertised, using %s", ep.Hostname, eventsURL)
	}

	b, err = c.call(ctx, eventsURL, buildEnvelope(creds, "", "",
		`<CreatePullPointSubscription xmlns="`+nsEvents+`"><InitialTerminationTime>`+
			xsdDuration(c.TerminationTime)+`</InitialTerminationTime></CreatePullPointSubscription>`))
	if err != nil {
		return nil, fmt.Errorf("create pull point subscription: %w", err)
	}
	if b.Subscription == nil || b.Subscription.Address == "" {
		return nil, errors.New("create pull point subscription: no subscription address")
	}

	log.Debug().Msgf("%s: subscribed at %s", ep.Hostname, b.Subscription.Address)
	return &Session{
		client:    c,
		hostname:  ep.Hostname,
		creds:     creds,
		address:   b.Subscription.Address,
		renewedAt: time.Now(),
	}, nil
}

// Session is one live pull point subscription.
type Session struct {
	client    *Client
	hostname  string
	creds     credentials
	address   string
	renewedAt time.Time
}

// Address is the subscription manager address handed out by the camera.
func (s *Session) Address() string {
	return s.address
}

// Events pulls notifications and hands each one to handle, in the order the
// camera reported them, until ctx is done (nil) or the subscription fails.
func (s *Session) Events(ctx context.Context, handle func(Message)) error {
	pull := `<PullMessages xmlns="` + nsEvents + `"><Timeout>` + xsdDuration(s.client.PullTimeout) +
		`</Timeout><MessageLimit>` + fmt.Sprint(s.client.MessageLimit) + `</MessageLimit></PullMessages>`

	for {
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(s.renewedAt) >= s.client.TerminationTime/2 {
			if err := s.renew(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("renew: %w", err)
			}
		}

		b, err := s.client.call(ctx, s.address, buildEnvelope(s.creds, actionPullMessages, s.address, pull))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pull messages: %w", err)
		}
		if b.Pull == nil {
			return errors.New("pull messages: unexpected response")
		}

		for _, n := range b.Pull.Notifications {
			handle(n.decode())
		}
	}
}

func (s *Session) renew(ctx context.Context) error {
	_, err := s.client.call(ctx, s.address, buildEnvelope(s.creds, actionRenew, s.address,
		`<Renew xmlns="`+nsNotify+`"><TerminationTime>`+xsdDuration(s.client.TerminationTime)+`</TerminationTime></Renew>`))
	if err != nil {
		return err
	}
	s.renewedAt = time.Now()
	log.Trace().Msgf("%s: subscription renewed", s.hostname)
	return nil
}

// Close unsubscribes. The camera drops the subscription on its own once the
// termination time passes, so failures here are not worth retrying.
func (s *Session) Close(ctx context.Context) error {
	_, err := s.client.call(ctx, s.address, buildEnvelope(s.creds, actionUnsubscribe, s.address,
		`<Unsubscribe xmlns="`+nsNotify+`"/>`))
	if err != nil {
		return fmt.Errorf("unsubscribe: %w", err)
	}
	return nil
}

func portOrDefault(port int) int {
	if port == 0 {
		return 80
	}
	return port
}
