package cameraservice

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Supervisor keeps trying to open a session with one camera.
type Supervisor struct {
	cfg    CameraConfig
	dial   Dialer
	logger zerolog.Logger

	// OnAttemptFailed, if set, is told about every failed attempt.
	OnAttemptFailed func(attempt int, err error)
}

// NewSupervisor returns a supervisor for cfg. A zero RetryDelay falls back
// to DefaultRetryDelay.
func NewSupervisor(cfg CameraConfig, dial Dialer, logger zerolog.Logger) *Supervisor {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Supervisor{cfg: cfg, dial: dial, logger: logger}
}

// Connect blocks until a session is live. It retries forever at a fixed
// interval and only returns an error once ctx is done.
func (s *Supervisor) Connect(ctx context.Context) (Session, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		session, err := s.dial(ctx, s.cfg)
		if err == nil {
			if attempt > 1 {
				s.logger.Info().Int("attempts", attempt).Msg("connected after retrying")
			}
			return session, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		s.logger.Warn().Err(err).Int("attempt", attempt).
			Msgf("Error connecting to ONVIF camera %s, retrying in %v", s.cfg.Hostname, s.cfg.RetryDelay)
		if s.OnAttemptFailed != nil {
			s.OnAttemptFailed(attempt, err)
		}

		timer := time.NewTimer(s.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
