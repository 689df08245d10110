package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/simplesurance/reviewflow/internal/logfields"
)

const loggerName = "notification"

// LogSink writes notifications to the log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{logger: zap.L().Named(loggerName)}
}

func (*LogSink) Mention(login string) string {
	return "@" + login
}

func (s *LogSink) PostMessage(_ context.Context, category MessageCategory, userID int64, login, text string) (*MessageRef, error) {
	s.logger.Info(
		text,
		logfields.Event("notification_posted"),
		zap.String("notification_category", string(category)),
		zap.Int64("github.user_id", userID),
		zap.String("github.login", login),
	)

	return nil, nil
}

func (*LogSink) UpdateMessage(context.Context, *MessageRef, string) error {
	return nil
}

func (*LogSink) DeleteMessage(context.Context, *MessageRef) error {
	return nil
}

func (*LogSink) AddReaction(context.Context, *MessageRef, string) error {
	return nil
}
