package hooks

import (
	"context"
	"log/slog"

	"github.com/mixelka/mailvault/pkg/models"
)

// LoggingListener is a built-in listener that logs every ingested message.
type LoggingListener struct {
	logger *slog.Logger
}

// NewLoggingListener creates the built-in logging listener
func NewLoggingListener(logger *slog.Logger) *LoggingListener {
	return &LoggingListener{logger: logger.With("listener", "logging")}
}

// Config implements Listener
func (l *LoggingListener) Config() ListenerConfig {
	return ListenerConfig{
		ID:          "logging",
		Name:        "Logging",
		Description: "Logs every ingested message",
		Event:       EventEmailReceived,
		Enabled:     true,
	}
}

// Handle implements Listener
func (l *LoggingListener) Handle(ctx context.Context, event string, msg *models.Message) (Result, error) {
	l.logger.Info("message ingested",
		"message_id", msg.MessageID,
		"from", msg.FromAddress,
		"subject", msg.Subject,
		"attachments", msg.AttachmentCount,
	)
	return Result{Executed: true, Reason: "logged"}, nil
}
