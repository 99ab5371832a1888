package notifier

import (
	"io"
	"log/slog"
	"testing"

	"github.com/slack-go/slack"
	"github.com/smarttherm/fglair-smart/internal/schedule"
	"github.com/smarttherm/fglair-smart/internal/smart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	attachments []slack.Attachment
}

func (f *fakeSender) PostMessage(_ string, options ...slack.MsgOption) (string, string, error) {
	// the attachment is recorded via Notify's arguments in these tests; the
	// option list is opaque, so just count the call
	f.attachments = append(f.attachments, slack.Attachment{})
	_ = options
	return "", "", nil
}

func (f *fakeSender) GetConversations(_ *slack.GetConversationsParameters) ([]slack.Channel, string, error) {
	channel := slack.Channel{}
	channel.ID = "C1"
	channel.Name = "general"
	channel.IsMember = true
	return []slack.Channel{channel}, "", nil
}

func (f *fakeSender) AuthTest() (*slack.AuthTestResponse, error) {
	return &slack.AuthTestResponse{UserID: "U1"}, nil
}

type recorder struct {
	titles []string
	texts  []string
}

func (r *recorder) Notify(title, text string) {
	r.titles = append(r.titles, title)
	r.texts = append(r.texts, text)
}

func testMonitor(r *recorder) *Monitor {
	return &Monitor{
		Notifiers: Notifiers{r},
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func heat(target float64) smart.Program {
	return smart.Program{TargetMode: smart.ModeHeat, TargetTemperature: &target, Schedule: "normal"}
}

func TestMonitor_ModeChanges(t *testing.T) {
	var r recorder
	m := testMonitor(&r)

	m.process(heat(20))
	m.process(heat(20)) // unchanged: no message
	program := heat(20)
	program.TargetMode = smart.ModeCool
	program.TargetTemperature = ptr(24.0)
	m.process(program)

	require.Equal(t, []string{"heating to 20.0°C", "cooling to 24.0°C"}, r.titles)
}

func TestMonitor_HoldAndResume(t *testing.T) {
	var r recorder
	m := testMonitor(&r)

	m.process(heat(20))
	held := heat(20)
	held.Held = true
	m.process(held)
	m.process(heat(20))

	require.Equal(t, []string{"heating to 20.0°C", "program held", "program resumed"}, r.titles)
	assert.Equal(t, "the appliance was adjusted manually", r.texts[1])
	assert.Equal(t, "heating to 20.0°C", r.texts[2])
}

func TestMonitor_ScheduleSwitch(t *testing.T) {
	var r recorder
	m := testMonitor(&r)

	m.process(heat(20))
	away := heat(16)
	away.Schedule = "away"
	m.process(away)

	require.Equal(t, []string{"heating to 20.0°C", "switching to away schedule"}, r.titles)
	assert.Equal(t, "heating to 16.0°C", r.texts[1])
}

func TestMonitor_Eco(t *testing.T) {
	var r recorder
	m := testMonitor(&r)

	m.process(heat(20))
	eco := heat(18.5)
	eco.EcoActive = true
	m.process(eco)

	require.Equal(t, []string{"heating to 20.0°C", "heating to 18.5°C"}, r.titles)
	assert.Equal(t, "eco window active", r.texts[1])
}

func TestModeText(t *testing.T) {
	assert.Equal(t, "off", modeText(smart.Program{TargetMode: smart.ModeOff}))
	assert.Equal(t, "circulating air at 40%", modeText(smart.Program{
		TargetMode: smart.ModeOff,
		FanSpeed:   schedule.FanSpeed{Level: 40},
	}))
	assert.Equal(t, "holding 22.0°C", modeText(smart.Program{
		TargetMode:        smart.ModeAuto,
		TargetTemperature: ptr(22.0),
	}))
	assert.Equal(t, "heating to unknown", modeText(smart.Program{TargetMode: smart.ModeHeat}))
}

func TestSlackNotifier(t *testing.T) {
	sender := fakeSender{}
	s := SlackNotifier{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		SlackSender: &sender,
	}

	s.Notify("heating to 20.0°C", "")
	s.Notify("off", "")
	assert.Len(t, sender.attachments, 2)
	assert.Equal(t, "U1", s.userID)
}

func ptr[T any](v T) *T { return &v }
