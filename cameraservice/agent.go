package cameraservice

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bigjimnolan/onvifbridge/onvifservice"
)

const (
	notifyTimeout = 10 * time.Second
	closeTimeout  = 5 * time.Second
)

// ErrMissingValue is returned for motion messages without an IsMotion item.
var ErrMissingValue = errors.New("motion message has no " + MotionItem + " value")

var errStreamClosed = errors.New("event stream closed by camera")

// Agent runs one camera: it keeps a session open, feeds motion values into
// its Debouncer and delivers the resulting transitions to the Notifier in
// the order they happened.
type Agent struct {
	cfg        CameraConfig
	notifier   Notifier
	supervisor *Supervisor
	debouncer  *Debouncer
	logger     zerolog.Logger

	// queue is unbounded so the debouncer never waits on a slow notifier.
	queueMu     sync.Mutex
	queue       []Notification
	queueClosed bool
	wake        chan struct{}

	ready         chan struct{}
	readyOnce     sync.Once
	done          chan struct{}
	cancel        context.CancelFunc

	mu       sync.Mutex
	state    AgentState
	connects int
	lastErr  string
	since    time.Time
}

// NewAgent builds an agent without starting it. A zero OffDelay falls back
// to DefaultOffDelay.
func NewAgent(cfg CameraConfig, dial Dialer, notifier Notifier) *Agent {
	if cfg.OffDelay <= 0 {
		cfg.OffDelay = DefaultOffDelay
	}
	logger := log.With().Str("camera", cfg.CameraID).Str("host", cfg.Hostname).Logger()

	a := &Agent{
		cfg:      cfg,
		notifier: notifier,
		logger:   logger,
		wake:     make(chan struct{}, 1),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		state:    StateConnecting,
		since:    time.Now(),
	}
	a.supervisor = NewSupervisor(cfg, dial, logger)
	a.supervisor.OnAttemptFailed = func(_ int, err error) { a.recordError(err) }
	a.debouncer = NewDebouncer(cfg.OffDelay, a.emit)
	return a
}

// Start runs a new agent in the background and returns its handle.
func Start(ctx context.Context, cfg CameraConfig, dial Dialer, notifier Notifier) *Agent {
	a := NewAgent(cfg, dial, notifier)
	ctx, a.cancel = context.WithCancel(ctx)
	go a.Run(ctx)
	return a
}

// Stop cancels an agent created by Start and waits for it to exit.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	<-a.done
}

// CameraID is the downstream id of the camera.
func (a *Agent) CameraID() string {
	return a.cfg.CameraID
}

// Ready is closed once the first subscription is live.
func (a *Agent) Ready() <-chan struct{} {
	return a.ready
}

// Done is closed once Run has returned.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Run blocks until ctx is done. Connection failures and dropped streams are
// retried; nothing that happens on the camera side ends the loop.
func (a *Agent) Run(ctx context.Context) {
	defer close(a.done)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.dispatch(context.WithoutCancel(ctx))
	}()

	defer func() {
		// Close first: once it returns the debouncer cannot emit again,
		// so nothing is queued after closeQueue.
		a.debouncer.Close()
		a.closeQueue()
		wg.Wait()
		a.setState(StateStopped)
		a.logger.Info().Msg("Stopped event listener")
	}()

	for {
		a.setState(StateConnecting)
		session, err := a.supervisor.Connect(ctx)
		if err != nil {
			return
		}

		a.subscribed()
		a.logger.Info().Msg("Start event listener")

		err = session.Events(ctx, a.handle)

		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		if cerr := session.Close(closeCtx); cerr != nil {
			a.logger.Debug().Err(cerr).Msg("closing session")
		}
		cancel()

		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errStreamClosed
		}
		a.recordError(err)
		a.logger.Warn().Err(err).Msgf("Event stream lost, reconnecting in %v", a.supervisor.cfg.RetryDelay)

		timer := time.NewTimer(a.supervisor.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (a *Agent) handle(msg onvifservice.Message) {
	if !strings.Contains(msg.Topic, MotionTopic) {
		return
	}

	isMotion, err := MotionValue(msg)
	if err != nil {
		a.logger.Warn().Err(err).Str("topic", msg.Topic).Msg("skipping motion message")
		return
	}

	a.logger.Debug().Msgf("Motion detected: %v", isMotion)
	a.debouncer.Signal(isMotion)
}

// MotionValue extracts the motion boolean from a motion topic message.
func MotionValue(msg onvifservice.Message) (bool, error) {
	raw, ok := msg.Value(MotionItem)
	if !ok {
		return false, ErrMissingValue
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("parsing %s %q: %w", MotionItem, raw, err)
	}
	return v, nil
}

// emit runs under the debouncer lock and must never block.
func (a *Agent) emit(kind EventKind) {
	a.queueMu.Lock()
	a.queue = append(a.queue, Notification{Kind: kind, CameraID: a.cfg.CameraID, Time: time.Now()})
	a.queueMu.Unlock()
	a.signal()
}

func (a *Agent) closeQueue() {
	a.queueMu.Lock()
	a.queueClosed = true
	a.queueMu.Unlock()
	a.signal()
}

func (a *Agent) signal() {
	select {
	case a.wake <- struct{}{}:
	default:
	}
}

// takeQueued empties the queue.
func (a *Agent) takeQueued() ([]Notification, bool) {
	a.queueMu.Lock()
	defer a.queueMu.Unlock()
	batch := a.queue
	a.queue = nil
	return batch, a.queueClosed
}

// dispatch delivers queued notifications one at a time, in order, until the
// queue is closed and drained.
func (a *Agent) dispatch(ctx context.Context) {
	for {
		batch, closed := a.takeQueued()
		if len(batch) == 0 {
			if closed {
				return
			}
			<-a.wake
			continue
		}
		for _, n := range batch {
			a.deliver(ctx, n)
		}
	}
}

func (a *Agent) deliver(ctx context.Context, n Notification) {
	callCtx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	var err error
	switch n.Kind {
	case EventStart:
		err = a.notifier.EventStart(callCtx, n.CameraID)
	case EventEnd:
		err = a.notifier.EventEnd(callCtx, n.CameraID)
	}
	if err != nil {
		a.logger.Error().Err(err).Msgf("motion event %s not delivered", n.Kind)
		return
	}
	a.logger.Info().Msgf("motion event %s sent", n.Kind)
}

func (a *Agent) subscribed() {
	a.mu.Lock()
	a.connects++
	a.lastErr = ""
	a.mu.Unlock()

	a.setState(StateSubscribed)
	a.readyOnce.Do(func() { close(a.ready) })
}

func (a *Agent) setState(s AgentState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != s {
		a.state = s
		a.since = time.Now()
	}
}

func (a *Agent) recordError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastErr = err.Error()
}

// Status returns a snapshot of the agent.
func (a *Agent) Status() Status {
	motion := a.debouncer.State()

	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{
		CameraID:  a.cfg.CameraID,
		Hostname:  a.cfg.Hostname,
		State:     a.state,
		Motion:    motion,
		Connects:  a.connects,
		LastError: a.lastErr,
		Since:     a.since,
	}
}
