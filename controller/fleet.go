package controller

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/bigjimnolan/onvifbridge/cameraservice"
)

// Fleet runs one agent per camera. Agents share nothing; an unreachable
// camera only ever delays itself.
type Fleet struct {
	agents   []*cameraservice.Agent
	byID     map[string]*cameraservice.Agent
	allReady chan struct{}
}

func NewFleet(cameras []cameraservice.CameraConfig, dial cameraservice.Dialer, notifier cameraservice.Notifier) *Fleet {
	f := &Fleet{
		byID:     make(map[string]*cameraservice.Agent, len(cameras)),
		allReady: make(chan struct{}),
	}
	for _, cfg := range cameras {
		a := cameraservice.NewAgent(cfg, dial, notifier)
		f.agents = append(f.agents, a)
		f.byID[cfg.CameraID] = a
	}
	return f
}

// Run starts every agent and blocks until ctx is done and all of them have
// shut down.
func (f *Fleet) Run(ctx context.Context) error {
	var g errgroup.Group

	for _, a := range f.agents {
		g.Go(func() error {
			a.Run(ctx)
			return nil
		})
	}

	subscribed := make(chan string)
	for _, a := range f.agents {
		g.Go(func() error {
			select {
			case <-a.Ready():
				select {
				case subscribed <- a.CameraID():
				case <-ctx.Done():
				}
			case <-ctx.Done():
			}
			return nil
		})
	}

	g.Go(func() error {
		f.reportStartup(ctx, subscribed)
		return nil
	})

	return g.Wait()
}

// reportStartup logs each camera as it subscribes and closes allReady once
// every camera has.
func (f *Fleet) reportStartup(ctx context.Context, subscribed <-chan string) {
	total := len(f.agents)
	log.Info().Msgf("Starting %d camera agents", total)

	for count := 0; count < total; {
		select {
		case id := <-subscribed:
			count++
			log.Info().Msgf("Camera %s subscribed (%d/%d)", id, count, total)
		case <-ctx.Done():
			return
		}
	}
	log.Info().Msg("All cameras subscribed")
	close(f.allReady)
}

// Ready returns the ready channel of one camera.
func (f *Fleet) Ready(cameraID string) (<-chan struct{}, bool) {
	a, ok := f.byID[cameraID]
	if !ok {
		return nil, false
	}
	return a.Ready(), true
}

// AllReady is closed once every camera has subscribed at least once.
func (f *Fleet) AllReady() <-chan struct{} {
	return f.allReady
}

func (f *Fleet) Statuses() []cameraservice.Status {
	return lo.Map(f.agents, func(a *cameraservice.Agent, _ int) cameraservice.Status {
		return a.Status()
	})
}
