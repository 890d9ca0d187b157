package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"quicktext/internal/server/notify"
)

// HandleEvents handles GET /api/share/:code/events.
// Streams content-updated server-sent events for a share the caller may read.
func (h *Handler) HandleEvents(c echo.Context) error {
	if h.hub == nil {
		return c.JSON(http.StatusNotImplemented, echo.Map{"error": "live updates are disabled"})
	}

	ctx := c.Request().Context()
	share, err := h.svc.CheckAccess(ctx, c.Param("code"), c.QueryParam("password"))
	if err != nil {
		return h.mapServiceError(c, err)
	}

	events, cancel := h.hub.Subscribe(share.Code)
	defer cancel()

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(res, ": connected\n\n"); err != nil {
		return nil
	}
	res.Flush()

	h.logger.Debug("event stream opened", zap.String("code", share.Code))
	defer h.logger.Debug("event stream closed", zap.String("code", share.Code))

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := writeEvent(res, ev); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev notify.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: content-updated\ndata: %s\n\n", data)
	return err
}
