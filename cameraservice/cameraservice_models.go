package cameraservice

import (
	"context"
	"time"

	"github.com/bigjimnolan/onvifbridge/onvifservice"
)

const (
	// MotionTopic identifies cell motion detector rule notifications.
	MotionTopic = "RuleEngine/CellMotionDetector/Motion"
	// MotionItem is the data item carrying the motion boolean.
	MotionItem = "IsMotion"

	DefaultOffDelay   = 10 * time.Second
	DefaultRetryDelay = 5 * time.Second
)

// CameraConfig describes one camera. It is not modified after load.
type CameraConfig struct {
	Hostname   string
	Port       int
	Username   string
	Password   string
	CameraID   string
	OffDelay   time.Duration
	RetryDelay time.Duration
}

// Endpoint is the protocol-level view of the camera.
func (c CameraConfig) Endpoint() onvifservice.Endpoint {
	return onvifservice.Endpoint{
		Hostname: c.Hostname,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
	}
}

// Session is a live event subscription on one camera.
type Session interface {
	// Events delivers messages in order until ctx is done (nil) or the
	// subscription breaks (non-nil).
	Events(ctx context.Context, handle func(onvifservice.Message)) error
	Close(ctx context.Context) error
}

// Dialer opens a Session. It may fail; callers retry.
type Dialer func(ctx context.Context, cfg CameraConfig) (Session, error)

// Notifier receives coalesced motion transitions for a camera.
type Notifier interface {
	EventStart(ctx context.Context, cameraID string) error
	EventEnd(ctx context.Context, cameraID string) error
}

// EventKind is the direction of a motion transition.
type EventKind int

const (
	EventStart EventKind = iota
	EventEnd
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventEnd:
		return "end"
	default:
		return "unknown"
	}
}

// Notification is one Start or End for a camera.
type Notification struct {
	Kind     EventKind
	CameraID string
	Time     time.Time
}

// MotionState is the debouncer state as seen from outside.
type MotionState string

const (
	MotionIdle   MotionState = "idle"
	MotionActive MotionState = "active"
	MotionEnding MotionState = "ending"
)

// AgentState is the connection lifecycle of an agent.
type AgentState string

const (
	StateConnecting AgentState = "connecting"
	StateSubscribed AgentState = "subscribed"
	StateStopped    AgentState = "stopped"
)

// Status is a point-in-time snapshot of an agent.
type Status struct {
	CameraID  string      `json:"cameraId"`
	Hostname  string      `json:"hostname"`
	State     AgentState  `json:"state"`
	Motion    MotionState `json:"motion"`
	Connects  int         `json:"connects"`
	LastError string      `json:"lastError,omitempty"`
	Since     time.Time   `json:"since"`
}
