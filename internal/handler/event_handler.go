package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/VasantLong/cgms2025/internal/ports"
	"github.com/VasantLong/cgms2025/internal/response"
	"github.com/VasantLong/cgms2025/internal/service"
)

const keepAliveInterval = 30 * time.Second

var pingPayload = []byte(`{"type":"ping"}`)

// EventHandler streams committed roster and grade changes of a section.
type EventHandler struct {
	events       ports.EventSubscriber
	classService *service.ClassService
	keepAlive    time.Duration
	log          zerolog.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(events ports.EventSubscriber, classService *service.ClassService, log zerolog.Logger) *EventHandler {
	return &EventHandler{
		events:       events,
		classService: classService,
		keepAlive:    keepAliveInterval,
		log:          log.With().Str("component", "event_handler").Logger(),
	}
}

// Stream godoc
// GET /api/class/:sn/events
// Server-sent events: one data frame per committed change, plus a ping frame
// every 30 seconds so proxies keep the connection open.
func (h *EventHandler) Stream(c *gin.Context) {
	classSN, ok := pathID(c, "sn")
	if !ok {
		return
	}
	reqCtx := c.Request.Context()

	if _, err := h.classService.GetByID(reqCtx, classSN); err != nil {
		fail(c, h.log, err)
		return
	}

	events, stop, err := h.events.Subscribe(reqCtx, classSN)
	if err != nil {
		h.log.Error().Err(err).Int("class_sn", classSN).Msg("Failed to subscribe to section events")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	defer stop()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	keepAlive := time.NewTicker(h.keepAlive)
	defer keepAlive.Stop()

	h.log.Info().Int("class_sn", classSN).Msg("Client attached to section events")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Int("class_sn", classSN).Msg("Client detached from section events")
			return

		case payload, ok := <-events:
			if !ok {
				return
			}
			writeFrame(c, payload)

		case <-keepAlive.C:
			writeFrame(c, pingPayload)
		}
	}
}

// writeFrame forwards a JSON payload as one SSE data frame.
func writeFrame(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write([]byte("data: "))
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
