package controller

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testOffDelay   = 10 * time.Second
	testRetryDelay = 5 * time.Second
)

func TestDecodeCameras_LegacyArray(t *testing.T) {
	input := `[
		{"hostname": "192.168.1.20", "username": "admin", "password": "pw", "port": 8000, "motionCameraId": 1, "timeout": 3000},
		{"hostname": "192.168.1.21", "username": "admin", "password": "pw", "motionCameraId": "2"}
	]`

	cameras, err := DecodeCameras(strings.NewReader(input), testOffDelay, testRetryDelay)
	require.NoError(t, err)
	require.Len(t, cameras, 2)

	assert.Equal(t, "1", cameras[0].CameraID)
	assert.Equal(t, 8000, cameras[0].Port)
	assert.Equal(t, 3*time.Second, cameras[0].OffDelay)
	assert.Equal(t, testRetryDelay, cameras[0].RetryDelay)

	assert.Equal(t, "2", cameras[1].CameraID)
	assert.Equal(t, 80, cameras[1].Port, "port defaults to 80")
	assert.Equal(t, testOffDelay, cameras[1].OffDelay)
}

func TestDecodeCameras_ObjectForm(t *testing.T) {
	input := `{"cameras": [
		{"hostname": "cam.local", "cameraId": "front", "offDelayMs": 2500, "retryDelayMs": 1000, "timeout": 9000}
	]}`

	cameras, err := DecodeCameras(strings.NewReader(input), testOffDelay, testRetryDelay)
	require.NoError(t, err)
	require.Len(t, cameras, 1)
	assert.Equal(t, "front", cameras[0].CameraID)
	assert.Equal(t, 2500*time.Millisecond, cameras[0].OffDelay, "offDelayMs wins over timeout")
	assert.Equal(t, time.Second, cameras[0].RetryDelay)
}

func TestDecodeCameras_ZeroDelaysUseDefaults(t *testing.T) {
	input := `[
		{"hostname": "a", "motionCameraId": 1, "timeout": 0},
		{"hostname": "b", "cameraId": "2", "offDelayMs": 0, "timeout": 4000, "retryDelayMs": 0},
		{"hostname": "c", "cameraId": "3", "offDelayMs": -5}
	]`

	cameras, err := DecodeCameras(strings.NewReader(input), testOffDelay, testRetryDelay)
	require.NoError(t, err)
	require.Len(t, cameras, 3)

	assert.Equal(t, testOffDelay, cameras[0].OffDelay)
	assert.Equal(t, 4*time.Second, cameras[1].OffDelay, "zero offDelayMs falls through to timeout")
	assert.Equal(t, testRetryDelay, cameras[1].RetryDelay)
	assert.Equal(t, testOffDelay, cameras[2].OffDelay)
}

func TestDecodeCameras_ZeroGlobalDelay(t *testing.T) {
	_, err := DecodeCameras(strings.NewReader(`[{"hostname": "a", "cameraId": "1"}]`), 0, testRetryDelay)
	assert.ErrorContains(t, err, "off delay must be positive")
}

func TestDecodeCameras_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "not json", input: `{cameras`, want: "parsing camera config"},
		{name: "empty list", input: `[]`, want: ErrNoCameras.Error()},
		{name: "missing hostname", input: `[{"cameraId": "1"}]`, want: "hostname is required"},
		{name: "missing id", input: `[{"hostname": "a"}]`, want: "cameraId is required"},
		{name: "bad port", input: `[{"hostname": "a", "cameraId": "1", "port": 70000}]`, want: "invalid port"},
		{name: "bool id", input: `[{"hostname": "a", "cameraId": true}]`, want: "camera id must be a string or a number"},
		{
			name:  "duplicate ids",
			input: `[{"hostname": "a", "cameraId": "1"}, {"hostname": "b", "motionCameraId": 1}]`,
			want:  "duplicate camera ids: 1",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeCameras(strings.NewReader(tc.input), testOffDelay, testRetryDelay)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestDecodeCameras_PasswordFromEnv(t *testing.T) {
	t.Setenv("ONVIF_PASSWORD_BACK_DOOR", "from-env")

	input := `[
		{"hostname": "a", "cameraId": "back-door", "username": "admin"},
		{"hostname": "b", "cameraId": "garage", "username": "admin", "password": "inline"}
	]`
	cameras, err := DecodeCameras(strings.NewReader(input), testOffDelay, testRetryDelay)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cameras[0].Password)
	assert.Equal(t, "inline", cameras[1].Password)
}

func TestLoadCameras(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moe.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"hostname": "a", "cameraId": "1"}]`), 0o600))

	cameras, err := LoadCameras(path, testOffDelay, testRetryDelay)
	require.NoError(t, err)
	assert.Len(t, cameras, 1)

	_, err = LoadCameras(filepath.Join(t.TempDir(), "missing.json"), testOffDelay, testRetryDelay)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPasswordEnvKey(t *testing.T) {
	assert.Equal(t, "ONVIF_PASSWORD_1", PasswordEnvKey("1"))
	assert.Equal(t, "ONVIF_PASSWORD_FRONT_DOOR", PasswordEnvKey("front door"))
}
