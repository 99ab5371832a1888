// Package cmd implements the fglair-smart command line.
package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/smarttherm/fglair-smart/internal/cmd/monitor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "fglair-smart",
		Short: "Schedule-driven climate control for FGLair airconditioners",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			charmer.SetJSONLogger(cmd, viper.GetBool("debug"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))

	RootCmd.AddCommand(&monitor.Cmd)
}

var args = charmer.Arguments{
	"debug":               charmer.Argument{Default: false, Help: "Log debug messages"},
	"fglair.username":     charmer.Argument{Default: "", Help: "FGLair username"},
	"fglair.password":     charmer.Argument{Default: "", Help: "FGLair password"},
	"fglair.region":       charmer.Argument{Default: "us", Help: "FGLair region (us, eu or cn)"},
	"fglair.dsn":          charmer.Argument{Default: "", Help: "Device serial number (blank: use the first device found)"},
	"controller.interval": charmer.Argument{Default: 30 * time.Second, Help: "Appliance poll interval"},
	"mqtt.broker":         charmer.Argument{Default: "tcp://localhost:1883", Help: "MQTT broker for zigbee2mqtt"},
	"mqtt.prefix":         charmer.Argument{Default: "zigbee2mqtt", Help: "zigbee2mqtt topic prefix"},
	"smart.referenceRoom": charmer.Argument{Default: "", Help: "Room whose sensor mirrors the appliance's own"},
	"smart.feelsLike":     charmer.Argument{Default: false, Help: "Regulate on humidex rather than temperature"},
	"state.file":          charmer.Argument{Default: "fglair-smart.json", Help: "Program state file"},
	"history.file":        charmer.Argument{Default: "", Help: "History database (blank: no history)"},
	"history.retention":   charmer.Argument{Default: 30 * 24 * time.Hour, Help: "History retention"},
	"weather.apikey":      charmer.Argument{Default: "", Help: "OpenWeatherMap API key (blank: no weather)"},
	"weather.city":        charmer.Argument{Default: "", Help: "City for weather reports"},
	"weather.lat":         charmer.Argument{Default: 0.0, Help: "Latitude for weather reports"},
	"weather.lon":         charmer.Argument{Default: 0.0, Help: "Longitude for weather reports"},
	"slack.token":         charmer.Argument{Default: "", Help: "Slack bot token (blank: no Slack bot)"},
	"web.addr":            charmer.Argument{Default: ":8080", Help: "Address of the web API"},
	"exporter.addr":       charmer.Argument{Default: ":9090", Help: "Address of the Prometheus exporter"},
	"health.addr":         charmer.Argument{Default: ":8081", Help: "Address of the /health endpoint"},
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/fglair-smart/")
		viper.AddConfigPath("$HOME/.fglair-smart")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := charmer.SetDefaults(viper.GetViper(), args); err != nil {
		panic("failed to set viper defaults: " + err.Error())
	}

	viper.SetEnvPrefix("FGLAIR_SMART")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Error("failed to read config file", "err", err)
		os.Exit(1)
	}
}
