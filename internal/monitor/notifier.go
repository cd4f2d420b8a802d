package monitor

import (
	"go.uber.org/zap"

	"github.com/synapse-app/focusmon/internal/domain"
)

// Notifier publishes block notifications to the presentation layer over
// a bounded channel. The loop already coalesces per episode, so when the
// subscriber lags the policy is to drop rather than queue unboundedly.
type Notifier struct {
	ch     chan domain.BlockedNotice
	logger *zap.Logger
}

// NewNotifier creates a notifier with the given channel capacity.
func NewNotifier(buffer int, logger *zap.Logger) *Notifier {
	if buffer <= 0 {
		buffer = 1
	}
	return &Notifier{
		ch:     make(chan domain.BlockedNotice, buffer),
		logger: logger,
	}
}

// Publish delivers a notice without ever blocking the monitoring loop.
func (n *Notifier) Publish(notice domain.BlockedNotice) {
	select {
	case n.ch <- notice:
	default:
		n.logger.Debug("dropping block notice, subscriber not keeping up",
			zap.String("process", notice.ProcessName))
	}
}

// C is the subscription channel.
func (n *Notifier) C() <-chan domain.BlockedNotice {
	return n.ch
}
