package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/samuraifrenchienft/music-legends-engine/internal/mint"
	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
	"github.com/samuraifrenchienft/music-legends-engine/internal/purchase"
	"github.com/samuraifrenchienft/music-legends-engine/internal/repository"
)

// CardHandler serves the card inventory plus the burn/trade intake.
// Burns and trades are not applied inline: they are enqueued like
// mints and settle through the worker pool, so ownership changes
// for one card are serialized behind the same resource lock.
type CardHandler struct {
	Cards *repository.CardRepo
	Queue purchase.Enqueuer
}

func NewCardHandler(cards *repository.CardRepo, q purchase.Enqueuer) *CardHandler {
	return &CardHandler{Cards: cards, Queue: q}
}

// Get returns one card by id, burned or not.
func (h *CardHandler) Get(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid card id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	card, err := h.Cards.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "card not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	return c.JSON(http.StatusOK, cardResp(card))
}

// ListByOwner returns a user's live cards (burned ones excluded).
func (h *CardHandler) ListByOwner(c echo.Context) error {
	ownerID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	cards, err := h.Cards.ListByOwner(ctx, ownerID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list failed"})
	}
	out := make([]echo.Map, 0, len(cards))
	for i := range cards {
		out = append(out, cardResp(&cards[i]))
	}
	return c.JSON(http.StatusOK, echo.Map{"cards": out})
}

// Burn queues a burn job for a card.  The serial stays consumed and
// supply counters never decrement, so burning does not reopen caps.
func (h *CardHandler) Burn(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid card id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Cards.Get(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "card not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}

	msgID, err := h.enqueue(ctx, "burn", id, mint.BurnJob{CardID: id}, "burn:"+uuid.NewString())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "enqueue burn failed"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"queued": true, "message_id": msgID})
}

type tradeReq struct {
	TradeID    string `json:"trade_id"`
	CardID     uint64 `json:"card_id"`
	FromUserID uint64 `json:"from_user_id"`
	ToUserID   uint64 `json:"to_user_id"`
}

// Trade queues a trade finalization.  TradeID doubles as the queue
// message id, so a retried webhook for the same trade enqueues
// nothing new.
func (h *CardHandler) Trade(c echo.Context) error {
	var req tradeReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.TradeID == "" || req.CardID == 0 || req.FromUserID == 0 || req.ToUserID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "trade_id, card_id, from_user_id and to_user_id required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	job := mint.TradeJob{CardID: req.CardID, FromUserID: req.FromUserID, ToUserID: req.ToUserID}
	msgID, err := h.enqueue(ctx, "trade_finalize", req.CardID, job, "trade:"+req.TradeID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "enqueue trade failed"})
	}
	return c.JSON(http.StatusAccepted, echo.Map{"queued": true, "message_id": msgID})
}

// Revoke removes a card from circulation immediately (admin use,
// e.g. fraudulent purchase).  Unlike burn it does not go through the
// queue: an operator acting on fraud wants the card gone now.
func (h *CardHandler) Revoke(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid card id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Cards.Revoke(ctx, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "card not found"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "card already out of circulation"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"revoked": true})
}

func (h *CardHandler) enqueue(ctx context.Context, queueName string, cardID uint64, body interface{}, msgID string) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(model.JobPayload{
		Type:        queueName,
		ResourceKey: fmt.Sprintf("card:%d", cardID),
		Body:        raw,
	})
	if err != nil {
		return "", err
	}
	return h.Queue.Enqueue(ctx, queueName, payload, 0, msgID)
}

func cardResp(card *model.Card) echo.Map {
	resp := echo.Map{
		"id":            card.ID,
		"serial_number": card.Serial,
		"tier":          card.Tier,
		"artist_id":     card.ArtistID,
		"season_id":     card.SeasonID,
		"pack_source":   card.PackSource,
		"scarcity":      card.Scarcity,
		"created_at":    card.CreatedAt,
	}
	if card.OwnerID != nil {
		resp["owner_id"] = *card.OwnerID
	}
	if card.BurnedAt != nil {
		resp["burned_at"] = *card.BurnedAt
	}
	return resp
}
