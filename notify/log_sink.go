package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSink writes events to the log; used when no Redis is configured.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Deliver(_ context.Context, ev *Event) error {
	l := s.Logger
	if l == nil {
		l = zap.NewNop()
	}
	l.Info("notification",
		zap.String("event_id", ev.ID),
		zap.String("type", string(ev.Type)),
		zap.String("account_id", ev.AccountID),
		zap.String("title", ev.Title),
		zap.String("body", ev.Body))
	return nil
}
