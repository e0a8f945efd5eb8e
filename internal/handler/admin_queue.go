package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/samuraifrenchienft/music-legends-engine/internal/queue"
)

// knownQueues are the queues operators may inspect.  Guarding the
// name keeps a typo from silently creating empty Redis keys.
var knownQueues = map[string]bool{
	"mint":           true,
	"burn":           true,
	"trade_finalize": true,
}

// QueueHandler is the admin surface over the durable queues: dead
// letter inspection, replay and purge.
type QueueHandler struct {
	Queue queue.Queue
}

func NewQueueHandler(q queue.Queue) *QueueHandler {
	return &QueueHandler{Queue: q}
}

func queueName(c echo.Context) (string, error) {
	name := c.Param("queue")
	if !knownQueues[name] {
		return "", errors.New("unknown queue")
	}
	return name, nil
}

// DeadLetters lists a queue's dead letters, newest first, with the
// original payload, failure reason and attempt count intact.
func (h *QueueHandler) DeadLetters(c echo.Context) error {
	name, err := queueName(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	entries, err := h.Queue.DeadLetters(ctx, name)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "dead letter list failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"queue": name, "count": len(entries), "dead_letters": entries})
}

// Replay moves one dead letter back onto its queue with a fresh
// attempts budget.  Typically used after the underlying fault (a
// down dependency, a bad deploy) has been fixed.
func (h *QueueHandler) Replay(c echo.Context) error {
	name, err := queueName(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	}
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Queue.Replay(ctx, name, id); err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "dead letter not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "replay failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"queue": name, "id": id, "replayed": true})
}

// Purge drops every dead letter for a queue and reports how many
// were removed.
func (h *QueueHandler) Purge(c echo.Context) error {
	name, err := queueName(c)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	n, err := h.Queue.PurgeDeadLetters(ctx, name)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "purge failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"queue": name, "purged": n})
}
