// Package bot adds Slack commands to inspect and steer the program engine.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/clambin/go-common/slackbot"
	"github.com/slack-go/slack"
	"github.com/smarttherm/fglair-smart/internal/sensors"
	"github.com/smarttherm/fglair-smart/internal/smart"
)

// SlackBot is the slackbot surface the bot needs.
type SlackBot interface {
	Register(name string, command slackbot.CommandFunc)
	Run(ctx context.Context) error
	Send(channel string, attachments []slack.Attachment) error
}

// Engine is the program engine surface the bot commands.
type Engine interface {
	GetProgram() smart.Program
	GetState() smart.State
	PauseProgram()
	ResumeProgram()
	SetScheduleTo(name string) error
	Subscribe() chan smart.Update
	Unsubscribe(ch chan smart.Update)
}

var _ Engine = &smart.Smart{}

type Bot struct {
	slack  SlackBot
	engine Engine
	logger *slog.Logger

	lock    sync.RWMutex
	devices sensors.Devices
	updated bool
}

func New(slackBot SlackBot, engine Engine, logger *slog.Logger) *Bot {
	b := Bot{
		slack:  slackBot,
		engine: engine,
		logger: logger,
	}
	slackBot.Register("program", b.ReportProgram)
	slackBot.Register("rooms", b.ReportRooms)
	slackBot.Register("schedule", b.SetSchedule)
	slackBot.Register("pause", b.Pause)
	slackBot.Register("resume", b.Resume)
	return &b
}

// Run caches engine updates so room reports don't race the poller.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Debug("started")
	defer b.logger.Debug("stopped")

	ch := b.engine.Subscribe()
	defer b.engine.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-ch:
			b.lock.Lock()
			b.devices = update.Devices
			b.updated = true
			b.lock.Unlock()
		}
	}
}

func (b *Bot) ReportProgram(_ context.Context, _ ...string) []slack.Attachment {
	program := b.engine.GetProgram()

	text := []string{"mode: " + program.TargetMode.String()}
	if program.TargetTemperature != nil {
		text = append(text, fmt.Sprintf("target: %.1fºC", *program.TargetTemperature))
	}
	if program.CurrentTemperature != nil {
		text = append(text, fmt.Sprintf("current: %.1fºC", *program.CurrentTemperature))
	}
	text = append(text, "schedule: "+program.Schedule)
	if program.Held {
		text = append(text, "program is paused")
	}
	if program.EcoActive {
		text = append(text, "eco is active")
	}
	if program.Away {
		text = append(text, "away detected")
	}

	return []slack.Attachment{{
		Color: "good",
		Title: "program:",
		Text:  strings.Join(text, "\n"),
	}}
}

func (b *Bot) ReportRooms(_ context.Context, _ ...string) []slack.Attachment {
	b.lock.RLock()
	defer b.lock.RUnlock()

	if !b.updated {
		return []slack.Attachment{{
			Color: "bad",
			Text:  "no updates yet. please check back later",
		}}
	}

	text := make([]string, 0, len(b.devices))
	for room := range b.devices {
		env, ok := b.devices.Environ(room)
		if !ok || !env.Online {
			continue
		}
		state := "empty"
		if b.devices.Active(room) {
			state = "occupied"
		}
		text = append(text, fmt.Sprintf("%s: %.1fºC, %.0f%% (%s)", room, env.Temperature, env.Humidity, state))
	}

	slackColor := "bad"
	slackTitle := ""
	slackText := "no rooms found"
	if len(text) > 0 {
		slackColor = "good"
		slackTitle = "rooms:"
		slices.Sort(text)
		slackText = strings.Join(text, "\n")
	}

	return []slack.Attachment{{
		Color: slackColor,
		Title: slackTitle,
		Text:  slackText,
	}}
}

func (b *Bot) SetSchedule(_ context.Context, args ...string) []slack.Attachment {
	if len(args) != 1 {
		names := make([]string, 0, 3)
		for name := range b.engine.GetState().Schedule.Schedules {
			names = append(names, name)
		}
		slices.Sort(names)
		return []slack.Attachment{{
			Color: "bad",
			Text:  "Usage: schedule <" + strings.Join(names, "|") + ">",
		}}
	}
	if err := b.engine.SetScheduleTo(args[0]); err != nil {
		return []slack.Attachment{{
			Color: "bad",
			Text:  err.Error(),
		}}
	}
	return []slack.Attachment{{
		Color: "good",
		Text:  "switched to the " + args[0] + " schedule",
	}}
}

func (b *Bot) Pause(_ context.Context, _ ...string) []slack.Attachment {
	b.engine.PauseProgram()
	return []slack.Attachment{{
		Color: "good",
		Text:  "program paused. manual settings will be left alone",
	}}
}

func (b *Bot) Resume(_ context.Context, _ ...string) []slack.Attachment {
	b.engine.ResumeProgram()
	return []slack.Attachment{{
		Color: "good",
		Text:  "program resumed",
	}}
}
