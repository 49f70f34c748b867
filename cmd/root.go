package cmd

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bigjimnolan/onvifbridge/cameraservice"
	"github.com/bigjimnolan/onvifbridge/controller"
)

const envPrefix = "MOE"

var rootCmd = &cobra.Command{
	Use:   "moe",
	Short: "Forward ONVIF camera motion events to Motion",
	Long: `moe subscribes to the motion events of every configured ONVIF camera and
triggers eventstart/eventend on the matching Motion camera. Motion states can
also be mirrored to MQTT and Kafka.

Can be installed as a system service with --service install.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		controller.SetLogFormat(viper.GetString("log-format"))
		controller.SetLogLevel(viper.GetString("log-level"))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := settingsFromViper(viper.GetViper())
		return runService(settings, viper.GetString("service"))
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Msgf("%v", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.Flags()
	flags.StringP("motion-base-url", "m", "", "Motion base URL, e.g. http://localhost:7999")
	flags.StringP("config-file", "f", "/etc/moe.json", "Camera config file")
	flags.IntP("timeout", "t", int(cameraservice.DefaultOffDelay/time.Millisecond), "Default motion end delay in milliseconds")
	flags.Int("retry-delay", int(cameraservice.DefaultRetryDelay/time.Millisecond), "Delay between connection attempts in milliseconds")
	flags.String("log-level", "info", "Log level: trace, debug, info, warn, error")
	flags.String("log-format", "json", "Log format: json or console")
	flags.String("mqtt-url", "", "External MQTT broker (host:port) to publish motion states to")
	flags.String("mqtt-listen", "", "Run an embedded MQTT broker on this address and publish to it")
	flags.String("mqtt-topic-prefix", "", "MQTT topic prefix (default onvifbridge)")
	flags.StringSlice("kafka-brokers", nil, "Kafka brokers to publish motion events to")
	flags.String("kafka-topic", controller.DefaultKafkaTopic, "Kafka topic for motion events")
	flags.String("status-addr", "", "Serve /status and /healthz on this address")
	flags.String("service", "", "Service action: install, uninstall, start, stop, restart")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flags); err != nil {
		log.Fatal().Msgf("binding flags: %v", err)
	}
}

// settingsFromViper reads the resolved flag and MOE_* values.
func settingsFromViper(v *viper.Viper) controller.Settings {
	// MOE_KAFKA_BROKERS arrives as one comma separated string.
	brokers := lo.FlatMap(v.GetStringSlice("kafka-brokers"), func(s string, _ int) []string {
		return strings.Split(s, ",")
	})
	brokers = lo.Compact(lo.Map(brokers, func(s string, _ int) string { return strings.TrimSpace(s) }))

	return controller.Settings{
		ConfigFile:        v.GetString("config-file"),
		MotionBaseURL:     v.GetString("motion-base-url"),
		DefaultOffDelay:   time.Duration(v.GetInt("timeout")) * time.Millisecond,
		DefaultRetryDelay: time.Duration(v.GetInt("retry-delay")) * time.Millisecond,
		LogLevel:          v.GetString("log-level"),
		LogFormat:         v.GetString("log-format"),
		MQTTURL:           v.GetString("mqtt-url"),
		MQTTListen:        v.GetString("mqtt-listen"),
		MQTTTopicPrefix:   v.GetString("mqtt-topic-prefix"),
		KafkaBrokers:      brokers,
		KafkaTopic:        v.GetString("kafka-topic"),
		StatusAddr:        v.GetString("status-addr"),
	}
}
