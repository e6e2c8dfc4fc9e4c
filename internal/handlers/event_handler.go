package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/vouch-backend/internal/session"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

const (
	defaultHeartbeat = 25 * time.Second
	backlogPage      = 200
)

// EventHandler exposes a recipient's event feed by cursor poll and as a
// server-sent event stream.
type EventHandler struct {
	feed      *events.Feed
	heartbeat time.Duration
	// done ends open streams on shutdown.
	done context.Context
}

func NewEventHandler(done context.Context, feed *events.Feed, heartbeat time.Duration) *EventHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeat
	}
	return &EventHandler{feed: feed, heartbeat: heartbeat, done: done}
}

// Poll returns events after the ?after= cursor, oldest first.
func (h *EventHandler) Poll(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	after, err := cursorParam(c.Query("after"))
	if err != nil {
		return badRequest(c, "after must be a non-negative event id")
	}

	evs, err := h.feed.Since(c.UserContext(), userID, after, c.QueryInt("limit", 0))
	if err != nil {
		return respondError(c, err)
	}
	resp := dto.EventsResponse{Events: make([]dto.EventResponse, len(evs)), Cursor: after}
	for i := range evs {
		resp.Events[i] = dto.NewEventResponse(&evs[i])
		resp.Cursor = evs[i].ID
	}
	return c.JSON(resp)
}

// Stream sends the backlog after Last-Event-ID (or ?after=), then live
// events. Hub notifications only wake the stream: frames are always read
// from the feed by cursor, so events dropped by a full subscriber buffer
// still arrive in order on the next wake or heartbeat.
func (h *EventHandler) Stream(c *fiber.Ctx) error {
	userID, err := session.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	raw := c.Get("Last-Event-ID")
	if raw == "" {
		raw = c.Query("after")
	}
	after, err := cursorParam(raw)
	if err != nil {
		return badRequest(c, "Last-Event-ID must be a non-negative event id")
	}

	// Subscribe before reading the backlog so nothing committed in between is missed.
	sub := h.feed.Subscribe(userID)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Close()
		s := &sseStream{w: w, feed: h.feed, recipient: userID, cursor: after}
		if err := s.catchUp(); err != nil {
			slog.Debug("event stream closed", "user_id", userID.String(), "error", err)
			return
		}

		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if ev.ID <= s.cursor {
					continue
				}
				if err := s.catchUp(); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := s.catchUp(); err != nil {
					return
				}
			case <-h.done.Done():
				return
			}
		}
	}))
	return nil
}

type sseStream struct {
	w         *bufio.Writer
	feed      *events.Feed
	recipient uuid.UUID
	cursor    int64
}

func (s *sseStream) catchUp() error {
	for {
		evs, err := s.feed.Since(context.Background(), s.recipient, s.cursor, backlogPage)
		if err != nil {
			return err
		}
		for _, ev := range evs {
			if err := s.write(ev); err != nil {
				return err
			}
		}
		if err := s.w.Flush(); err != nil {
			return err
		}
		if len(evs) < backlogPage {
			return nil
		}
	}
}

// write emits one event frame, skipping anything at or before the cursor.
func (s *sseStream) write(ev models.Event) error {
	if ev.ID <= s.cursor {
		return nil
	}
	data, err := json.Marshal(dto.NewEventResponse(&ev))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data); err != nil {
		return err
	}
	s.cursor = ev.ID
	return nil
}

func cursorParam(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid cursor %q", raw)
	}
	return n, nil
}
