// Package monitor implements the monitor command: it assembles the sensor
// source, the program engine, the appliance controller and the outer surfaces
// and runs them until interrupted.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/clambin/go-common/charmer"
	"github.com/clambin/go-common/slackbot"
	"github.com/clambin/go-common/taskmanager"
	"github.com/clambin/go-common/taskmanager/httpserver"
	promserver "github.com/clambin/go-common/taskmanager/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/slack-go/slack"
	"github.com/smarttherm/fglair-smart/internal/bot"
	"github.com/smarttherm/fglair-smart/internal/collector"
	"github.com/smarttherm/fglair-smart/internal/controller"
	"github.com/smarttherm/fglair-smart/internal/datalog"
	"github.com/smarttherm/fglair-smart/internal/fglair"
	"github.com/smarttherm/fglair-smart/internal/health"
	"github.com/smarttherm/fglair-smart/internal/notifier"
	"github.com/smarttherm/fglair-smart/internal/schedule"
	"github.com/smarttherm/fglair-smart/internal/sensors"
	"github.com/smarttherm/fglair-smart/internal/smart"
	"github.com/smarttherm/fglair-smart/internal/weather"
	"github.com/smarttherm/fglair-smart/internal/web"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Cmd = cobra.Command{
	Use:   "monitor",
	Short: "run the climate program",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := charmer.GetLogger(cmd)
		logger.Info("starting", "version", cmd.Root().Version)

		m, err := New(viper.GetViper(), cmd.Root().Version, logger)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		err = m.Run(ctx)

		logger.Info("stopped")
		return err
	},
}

func New(cfg *viper.Viper, version string, logger *slog.Logger) (*taskmanager.Manager, error) {
	client, err := fglair.NewClient(fglair.Configuration{
		Username: cfg.GetString("fglair.username"),
		Password: cfg.GetString("fglair.password"),
		Region:   fglair.Region(cfg.GetString("fglair.region")),
	}, logger.With("component", "fglair"))
	if err != nil {
		return nil, fmt.Errorf("fglair: %w", err)
	}

	source, err := sensors.NewZigbeeSource(
		cfg.GetString("mqtt.broker"),
		cfg.GetString("mqtt.prefix"),
		logger.With("component", "zigbee"),
	)
	if err != nil {
		return nil, fmt.Errorf("zigbee: %w", err)
	}

	// Do we have a schedule to seed a fresh state with?
	seed, err := maybeLoadSchedule(filepath.Join(filepath.Dir(cfg.ConfigFileUsed()), "schedule.yaml"), logger)
	if err != nil {
		return nil, err
	}

	return taskmanager.New(makeTasks(cfg, client, source, seed, version, prometheus.DefaultRegisterer, logger)...), nil
}

func maybeLoadSchedule(path string, logger *slog.Logger) ([]schedule.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
		return nil, err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	return schedule.Load(f, logger)
}

func makeTasks(cfg *viper.Viper, client *fglair.Client, source sensors.Updater, seed []schedule.Entry, version string, registry prometheus.Registerer, l *slog.Logger) []taskmanager.Task {
	var tasks []taskmanager.Task

	// State store
	store := smart.NewStore(cfg.GetString("state.file"), l.With("component", "store"))
	tasks = append(tasks, store)

	// Program engine
	engine := smart.New(source, store, smart.Configuration{
		ReferenceRoom: cfg.GetString("smart.referenceRoom"),
		FeelsLike:     cfg.GetBool("smart.feelsLike"),
	}, l.With("component", "smart"))
	if entries, _ := engine.GetSchedule(smart.ScheduleNormal); len(entries) == 0 && len(seed) > 0 {
		engine.SetSchedule(smart.ScheduleNormal, seed)
	}
	tasks = append(tasks, engine)

	// Appliance controller
	tasks = append(tasks, controller.New(
		client,
		engine,
		cfg.GetDuration("controller.interval"),
		cfg.GetString("fglair.dsn"),
		l.With("component", "controller"),
	))

	// Collector
	coll := &collector.Collector{Publisher: engine, Logger: l.With("component", "collector")}
	registry.MustRegister(coll)
	tasks = append(tasks, coll)

	// Prometheus server
	tasks = append(tasks, promserver.New(promserver.WithAddr(cfg.GetString("exporter.addr"))))

	// Health endpoint
	h := health.New(engine, l.With("component", "health"))
	tasks = append(tasks, h)
	r := http.NewServeMux()
	r.Handle("/health", h)
	tasks = append(tasks, httpserver.New(cfg.GetString("health.addr"), r))

	// History
	var history web.History
	if path := cfg.GetString("history.file"); path != "" {
		d, err := datalog.Open(path, cfg.GetDuration("history.retention"), engine, l.With("component", "datalog"))
		if err != nil {
			l.Error("history disabled", "err", err)
		} else {
			history = d
			tasks = append(tasks, d)
		}
	}

	// Weather
	var observer web.Weather
	if cfg.GetString("weather.apikey") != "" {
		p := weather.New(weather.Configuration{
			APIKey: cfg.GetString("weather.apikey"),
			City:   cfg.GetString("weather.city"),
			Lat:    cfg.GetFloat64("weather.lat"),
			Lon:    cfg.GetFloat64("weather.lon"),
		}, l.With("component", "weather"))
		observer = p
		tasks = append(tasks, p)
	}

	// Web API
	server := web.New(engine, history, observer, l.With("component", "web"))
	tasks = append(tasks, server)
	tasks = append(tasks, httpserver.New(cfg.GetString("web.addr"), server))

	// Notifiers
	notifiers := notifier.Notifiers{&notifier.SLogNotifier{Logger: l.With("component", "notifier")}}

	// Slack
	if token := cfg.GetString("slack.token"); token != "" {
		b := slackbot.New(
			token,
			slackbot.WithName("fglair-smart "+version),
			slackbot.WithLogger(l.With(slog.String("component", "slackbot"))),
		)
		tasks = append(tasks,
			b,
			bot.New(b, engine, l.With(slog.String("component", "bot"))),
		)
		notifiers = append(notifiers, &notifier.SlackNotifier{
			Logger:      l.With("component", "slack-notifier"),
			SlackSender: slack.New(token),
		})
	}

	tasks = append(tasks, &notifier.Monitor{
		Publisher: engine,
		Notifiers: notifiers,
		Logger:    l.With("component", "notifier"),
	})

	return tasks
}
