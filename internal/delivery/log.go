package delivery

import (
	"context"

	logx "spawnme/pkg/logx"
)

// LogSink writes notifications to the log. It never fails.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, n Notification) error {
	s.log.Info("notification",
		logx.String("id", n.ID),
		logx.String("title", n.Title),
		logx.String("body", n.Body),
	)
	return nil
}
