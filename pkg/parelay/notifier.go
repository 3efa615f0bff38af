package parelay

import (
	"github.com/gen2brain/beeep"
	"go.uber.org/zap"
)

// Notifier provides generic notification sending
type Notifier interface {
	Notify(title string, message string)
}

// DesktopNotifier shows desktop notifications through the session's
// notification service.
type DesktopNotifier struct {
	logger *zap.SugaredLogger
}

// NopNotifier discards notifications. Used when they're disabled in config.
type NopNotifier struct{}

func NewDesktopNotifier(logger *zap.SugaredLogger) (*DesktopNotifier, error) {
	notifier := &DesktopNotifier{logger: logger.Named("notifier")}
	notifier.logger.Debug("Created desktop notifier instance")

	return notifier, nil
}

func (dn *DesktopNotifier) Notify(title string, message string) {
	dn.logger.Infow("Sending notification", "title", title, "message", message)

	if err := beeep.Notify(title, message, ""); err != nil {
		dn.logger.Warnw("Failed to send notification", "error", err)
	}
}

func (nn *NopNotifier) Notify(title string, message string) {}
