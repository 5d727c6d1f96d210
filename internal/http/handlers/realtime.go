package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/brandpulse-backend/internal/http/response"
	"github.com/yungbote/brandpulse-backend/internal/platform/apierr"
	"github.com/yungbote/brandpulse-backend/internal/platform/logger"
	"github.com/yungbote/brandpulse-backend/internal/realtime"
)

const maxStreamChannels = 16

type RealtimeHandler struct {
	Log *logger.Logger
	Hub *realtime.SSEHub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub) *RealtimeHandler {
	return &RealtimeHandler{Log: log.With("handler", "RealtimeHandler"), Hub: hub}
}

// GET /api/sse/stream?channel=<projectId|batchExecutionId>
// A bare id subscribes to both the project and the batch channel for it.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	channels, err := streamChannels(c.QueryArray("channel"))
	if err != nil {
		response.RespondServiceError(c, err)
		return
	}

	client := h.Hub.NewSSEClient()
	for _, ch := range channels {
		h.Hub.AddChannel(client, ch)
	}
	h.Log.Debug("SSE stream open", "client_id", client.ID, "channels", channels)

	h.Hub.ServeHTTP(c.Writer, c.Request, client)
	h.Hub.CloseClient(client)
}

func streamChannels(raw []string) ([]string, error) {
	var out []string
	seen := map[string]bool{}
	add := func(ch string) {
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	for _, param := range raw {
		for _, v := range strings.Split(param, ",") {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if strings.HasPrefix(v, "project:") || strings.HasPrefix(v, "batch:") {
				add(v)
				continue
			}
			id, err := uuid.Parse(v)
			if err != nil {
				return nil, apierr.Invalid("invalid_channel", "invalid channel %q", v)
			}
			add(realtime.ProjectChannel(id))
			add(realtime.BatchChannel(id))
		}
	}
	if len(out) == 0 {
		return nil, apierr.Invalid("missing_channel", "channel is required")
	}
	if len(out) > 2*maxStreamChannels {
		return nil, apierr.Invalid("too_many_channels", "at most %d channels per stream", maxStreamChannels)
	}
	return out, nil
}
