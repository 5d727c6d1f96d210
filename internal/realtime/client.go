package realtime

import (
	"github.com/google/uuid"

	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
)

// SSEClient is one open event-stream connection and its channel subscriptions.
type SSEClient struct {
	ID       uuid.UUID
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	Logger   *logger.Logger
}
