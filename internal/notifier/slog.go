package notifier

import "log/slog"

type SLogNotifier struct {
	Logger *slog.Logger
}

var _ Notifier = &SLogNotifier{}

func (s SLogNotifier) Notify(title, text string) {
	s.Logger.Info(title, "detail", text)
}
