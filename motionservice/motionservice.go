package motionservice

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MotionService triggers events on a Motion instance through its webcontrol
// API: GET {base}/{camId}/action/eventstart and .../eventend.
type MotionService struct {
	BaseURL string
	HTTP    *resty.Client
}

// New returns a client for the Motion instance at baseURL. A trailing slash
// on baseURL is optional.
func New(baseURL string) *MotionService {
	baseURL = strings.TrimRight(baseURL, "/")

	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(5 * time.Second).
		// Motion is usually reached on the LAN, often behind a self-signed cert.
		SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})

	return &MotionService{BaseURL: baseURL, HTTP: r}
}

// EventStart tells Motion that an event started on cameraID.
func (ms *MotionService) EventStart(ctx context.Context, cameraID string) error {
	return ms.callAction(ctx, cameraID, "eventstart")
}

// EventEnd tells Motion that the event on cameraID is over.
func (ms *MotionService) EventEnd(ctx context.Context, cameraID string) error {
	return ms.callAction(ctx, cameraID, "eventend")
}

// callAction hits the webcontrol action endpoint for a single camera.
func (ms *MotionService) callAction(ctx context.Context, cameraID, action string) error {
	resp, err := ms.HTTP.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"camId":  cameraID,
			"action": action,
		}).
		Get("/{camId}/action/{action}")
	if err != nil {
		return fmt.Errorf("motion %s for camera %s: %w", action, cameraID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("motion %s for camera %s: http %d: %s", action, cameraID, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	if log.Logger.GetLevel() == zerolog.TraceLevel {
		log.Trace().Msgf("motion response: %s", resp.String())
	}
	return nil
}
