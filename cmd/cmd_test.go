package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigjimnolan/onvifbridge/controller"
)

func TestSettingsFromViper_Env(t *testing.T) {
	t.Setenv("MOE_MOTION_BASE_URL", "http://motion:7999")
	t.Setenv("MOE_TIMEOUT", "2500")
	t.Setenv("MOE_KAFKA_BROKERS", "k1:9092, k2:9092")

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	require.NoError(t, v.BindPFlags(rootCmd.Flags()))

	settings := settingsFromViper(v)
	assert.Equal(t, "http://motion:7999", settings.MotionBaseURL)
	assert.Equal(t, "/etc/moe.json", settings.ConfigFile)
	assert.Equal(t, 2500*time.Millisecond, settings.DefaultOffDelay)
	assert.Equal(t, 5*time.Second, settings.DefaultRetryDelay)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, settings.KafkaBrokers)
	assert.Equal(t, controller.DefaultKafkaTopic, settings.KafkaTopic)
}

func TestServiceArguments(t *testing.T) {
	args := serviceArguments(controller.Settings{
		MotionBaseURL:     "http://motion:7999",
		ConfigFile:        "/etc/moe.json",
		DefaultOffDelay:   10 * time.Second,
		DefaultRetryDelay: 5 * time.Second,
		StatusAddr:        ":8090",
		KafkaBrokers:      []string{"k1:9092"},
	})

	assert.Equal(t, []string{
		"--motion-base-url", "http://motion:7999",
		"--config-file", "/etc/moe.json",
		"--timeout", "10000",
		"--retry-delay", "5000",
		"--status-addr", ":8090",
		"--kafka-brokers", "k1:9092",
	}, args)
}

func TestRunService_RequiresMotionURL(t *testing.T) {
	err := runService(controller.Settings{}, "")
	assert.ErrorContains(t, err, "--motion-base-url")
}
