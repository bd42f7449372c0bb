package ingestion

import "log/slog"

// LogNotifier writes outcome notifications to a logger.
type LogNotifier struct {
	logger *slog.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// NewLogNotifier creates a notifier backed by logger.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// NotifySuccess implements Notifier.
func (n *LogNotifier) NotifySuccess(message string) {
	n.logger.Info("ingestion succeeded", "message", message)
}

// NotifyError implements Notifier.
func (n *LogNotifier) NotifyError(message string) {
	n.logger.Error("ingestion error", "message", message)
}

// NotifyCancelled implements Notifier.
func (n *LogNotifier) NotifyCancelled() {
	n.logger.Warn("ingestion cancelled")
}
