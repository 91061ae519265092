package handler

import (
	"context"
	"net/http"

	"github.com/GoPolymarket/polyclob/internal/pkg/apperrors"
	"github.com/GoPolymarket/polyclob/internal/repository"
	"github.com/GoPolymarket/polyclob/internal/stream"
	"github.com/gin-gonic/gin"
)

// RecentSource is implemented by *repository.EventPublisher.
type RecentSource interface {
	Recent(ctx context.Context, eventType stream.EventType, limit int) ([]repository.Envelope, error)
}

type EventsHandler struct {
	sources map[stream.Channel]RecentSource
}

func NewEventsHandler(sources map[stream.Channel]RecentSource) *EventsHandler {
	return &EventsHandler{sources: sources}
}

// Recent serves the events kept by the Redis publisher of one channel.
func (h *EventsHandler) Recent(c *gin.Context) {
	channel := stream.Channel(c.Param("channel"))
	src, ok := h.sources[channel]
	if !ok {
		_ = c.Error(apperrors.New(apperrors.ErrNotFound, "no publisher for channel "+string(channel), nil))
		return
	}
	limit, err := parseLimit(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	envs, err := src.Recent(c.Request.Context(), stream.EventType(c.Param("event_type")), limit)
	if err != nil {
		_ = c.Error(apperrors.New(apperrors.ErrInternal, "read recent events", err))
		return
	}
	c.JSON(http.StatusOK, envs)
}
