package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Settings is the process configuration. It comes from flags and MOE_*
// environment variables; the camera list itself comes from ConfigFile.
type Settings struct {
	ConfigFile        string
	MotionBaseURL     string
	DefaultOffDelay   time.Duration
	DefaultRetryDelay time.Duration
	LogLevel          string
	LogFormat         string
	MQTTURL           string
	MQTTListen        string
	MQTTTopicPrefix   string
	KafkaBrokers      []string
	KafkaTopic        string
	StatusAddr        string
}

// CamerasFile is the object form of the config file. A bare array of
// cameras is accepted as well.
type CamerasFile struct {
	Cameras []CameraEntry `json:"cameras"`
}

// CameraEntry is one camera as written in the config file. The legacy keys
// motionCameraId and timeout are still honoured.
type CameraEntry struct {
	Hostname       string     `json:"hostname"`
	Username       string     `json:"username"`
	Password       string     `json:"password"`
	Port           int        `json:"port"`
	CameraID       flexibleID `json:"cameraId"`
	MotionCameraID flexibleID `json:"motionCameraId"`
	OffDelayMs     *int       `json:"offDelayMs"`
	Timeout        *int       `json:"timeout"`
	RetryDelayMs   *int       `json:"retryDelayMs"`
}

// flexibleID accepts both "3" and 3; Motion camera ids are numeric but are
// commonly quoted.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("camera id must be a string or a number: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}
