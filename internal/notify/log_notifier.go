package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes instructions to the service log. It is the fallback
// sink when Redis is unreachable and the default sink in tests.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates the log-backed sink.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the instruction.
func (n *LogNotifier) Notify(ctx context.Context, unitID, callSign, message string) error {
	n.logger.Info("unit notification",
		zap.String("unit_id", unitID),
		zap.String("call_sign", callSign),
		zap.String("message", message))
	return nil
}
