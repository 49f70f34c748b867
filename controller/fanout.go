package controller

import (
	"context"
	"errors"

	"github.com/bigjimnolan/onvifbridge/cameraservice"
)

// fanout delivers every notification to each sink in turn. A failing sink
// does not keep the others from being called.
type fanout []cameraservice.Notifier

func (f fanout) EventStart(ctx context.Context, cameraID string) error {
	var errs []error
	for _, n := range f {
		if err := n.EventStart(ctx, cameraID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanout) EventEnd(ctx context.Context, cameraID string) error {
	var errs []error
	for _, n := range f {
		if err := n.EventEnd(ctx, cameraID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
