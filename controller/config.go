package controller

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/bigjimnolan/onvifbridge/cameraservice"
)

var ErrNoCameras = errors.New("no cameras configured")

// LoadCameras reads the camera list from path.
func LoadCameras(path string, offDelay, retryDelay time.Duration) ([]cameraservice.CameraConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return DecodeCameras(file, offDelay, retryDelay)
}

// DecodeCameras parses either a JSON array of cameras or {"cameras": [...]}
// and applies defaults. Delays left out of an entry take offDelay and
// retryDelay.
func DecodeCameras(r io.Reader, offDelay, retryDelay time.Duration) ([]cameraservice.CameraConfig, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)

	var entries []CameraEntry
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &entries)
	} else {
		var file CamerasFile
		err = json.Unmarshal(raw, &file)
		entries = file.Cameras
	}
	if err != nil {
		return nil, fmt.Errorf("parsing camera config: %w", err)
	}
	if len(entries) == 0 {
		return nil, ErrNoCameras
	}

	cameras := make([]cameraservice.CameraConfig, 0, len(entries))
	for i, entry := range entries {
		cfg, err := entry.toConfig(offDelay, retryDelay)
		if err != nil {
			return nil, fmt.Errorf("camera %d: %w", i, err)
		}
		cameras = append(cameras, cfg)
	}

	dupes := lo.FindDuplicatesBy(cameras, func(c cameraservice.CameraConfig) string { return c.CameraID })
	if len(dupes) > 0 {
		ids := lo.Map(dupes, func(c cameraservice.CameraConfig, _ int) string { return c.CameraID })
		return nil, fmt.Errorf("duplicate camera ids: %s", strings.Join(ids, ", "))
	}

	getSecrets(cameras)
	return cameras, nil
}

func (e CameraEntry) toConfig(offDelay, retryDelay time.Duration) (cameraservice.CameraConfig, error) {
	id := string(e.CameraID)
	if id == "" {
		id = string(e.MotionCameraID)
	}

	cfg := cameraservice.CameraConfig{
		Hostname:   strings.TrimSpace(e.Hostname),
		Port:       e.Port,
		Username:   e.Username,
		Password:   e.Password,
		CameraID:   strings.TrimSpace(id),
		OffDelay:   offDelay,
		RetryDelay: retryDelay,
	}

	// A missing or zero delay means the global default.
	switch {
	case positive(e.OffDelayMs):
		cfg.OffDelay = time.Duration(*e.OffDelayMs) * time.Millisecond
	case positive(e.Timeout):
		cfg.OffDelay = time.Duration(*e.Timeout) * time.Millisecond
	}
	if positive(e.RetryDelayMs) {
		cfg.RetryDelay = time.Duration(*e.RetryDelayMs) * time.Millisecond
	}

	if cfg.Hostname == "" {
		return cfg, errors.New("hostname is required")
	}
	if cfg.CameraID == "" {
		return cfg, fmt.Errorf("%s: cameraId is required", cfg.Hostname)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("%s: invalid port %d", cfg.Hostname, cfg.Port)
	}
	if cfg.Port == 0 {
		cfg.Port = 80
	}
	if cfg.OffDelay <= 0 {
		return cfg, fmt.Errorf("%s: off delay must be positive", cfg.Hostname)
	}
	if cfg.RetryDelay <= 0 {
		return cfg, fmt.Errorf("%s: retry delay must be positive", cfg.Hostname)
	}
	return cfg, nil
}

func positive(ms *int) bool {
	return ms != nil && *ms > 0
}

// getSecrets fills empty passwords from ONVIF_PASSWORD_<CAMERAID> so the
// config file does not have to hold them.
func getSecrets(cameras []cameraservice.CameraConfig) {
	for i := range cameras {
		if cameras[i].Password != "" {
			continue
		}
		key := PasswordEnvKey(cameras[i].CameraID)
		password := os.Getenv(key)
		if password == "" {
			log.Debug().Msgf("No password for camera %s (looked at %s)", cameras[i].CameraID, key)
			continue
		}
		cameras[i].Password = password
	}
}

// PasswordEnvKey is the environment variable holding a camera's password.
func PasswordEnvKey(cameraID string) string {
	key := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, cameraID)
	return "ONVIF_PASSWORD_" + key
}
