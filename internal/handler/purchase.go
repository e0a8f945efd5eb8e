package handler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/samuraifrenchienft/music-legends-engine/internal/purchase"
	"github.com/samuraifrenchienft/music-legends-engine/internal/ratelimit"
	"github.com/samuraifrenchienft/music-legends-engine/internal/repository"
)

// PurchaseHandler exposes the purchase intake: the trusted payment
// webhook layer posts completed payments here and we either queue a
// mint or report the earlier outcome for the same idempotency key.
//
// Rate limiting happens here rather than in route middleware: every
// webhook call arrives from the same gateway IP, so the actor has to
// be the buyer named in the payload, which only exists after binding
// the body.
type PurchaseHandler struct {
	Svc     *purchase.Service
	Cards   *repository.CardRepo
	Limiter *ratelimit.Limiter
}

func NewPurchaseHandler(svc *purchase.Service, cards *repository.CardRepo, limiter *ratelimit.Limiter) *PurchaseHandler {
	return &PurchaseHandler{Svc: svc, Cards: cards, Limiter: limiter}
}

type purchaseReq struct {
	UserID         uint64 `json:"user_id"`
	ProductKey     string `json:"product_key"`
	ArtistID       string `json:"artist_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

// Create accepts one completed payment.  Re-presenting an
// idempotency key never double-mints: the first call queues the mint
// job, every later call answers ALREADY_PROCESSED.
func (h *PurchaseHandler) Create(c echo.Context) error {
	var req purchaseReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.IdempotencyKey == "" {
		if hk := c.Request().Header.Get("Idempotency-Key"); hk != "" {
			req.IdempotencyKey = hk
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if denied, derr := h.throttle(ctx, c, req.UserID); denied {
		return derr
	}

	outcome, err := h.Svc.Handle(ctx, req.UserID, req.ProductKey, req.ArtistID, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, purchase.ErrValidation) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "purchase intake failed"})
	}

	status := http.StatusAccepted
	if outcome == purchase.OutcomeAlreadyProcessed {
		status = http.StatusOK
	}
	return c.JSON(status, echo.Map{
		"outcome":         outcome,
		"idempotency_key": req.IdempotencyKey,
	})
}

// throttle enforces the per-buyer purchase rule.  The actor is the
// buyer from the payload, never the client IP: every webhook call
// shares the gateway's address, and one busy buyer must not starve
// the rest.  Redis errors fail open so a limiter outage cannot drop
// paid purchases.
func (h *PurchaseHandler) throttle(ctx context.Context, c echo.Context, userID uint64) (bool, error) {
	if h.Limiter == nil || userID == 0 {
		return false, nil
	}
	actor := fmt.Sprintf("user:%d", userID)
	allowed, err := h.Limiter.Allow(ctx, actor, "purchase")
	if err != nil {
		log.Printf("purchase: rate limit check for %s failed: %v", actor, err)
		return false, nil
	}
	if allowed {
		return false, nil
	}

	resp := echo.Map{"error": "rate limit exceeded", "action": "purchase"}
	if st, serr := h.Limiter.GetStatus(ctx, actor, "purchase"); serr == nil {
		c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(st.Limit))
		c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(st.Remaining))
		if wait := time.Until(st.ResetTime); wait > 0 {
			c.Response().Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		}
		resp["reset_time"] = st.ResetTime.UTC().Format(time.RFC3339)
	}
	return true, c.JSON(http.StatusTooManyRequests, resp)
}

// Get reports the current state of a purchase by idempotency key.
func (h *PurchaseHandler) Get(c echo.Context) error {
	key := c.Param("key")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Svc.Store().Get(ctx, key)
	if err != nil {
		if errors.Is(err, purchase.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown idempotency key"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}

	resp := echo.Map{
		"idempotency_key": rec.IdempotencyKey,
		"user_id":         rec.UserID,
		"product_key":     rec.ProductKey,
		"status":          rec.Status,
		"created_at":      rec.CreatedAt,
		"updated_at":      rec.UpdatedAt,
	}
	if rec.CardID != nil {
		resp["card_id"] = *rec.CardID
	}
	if rec.FailureReason != "" {
		resp["failure_reason"] = rec.FailureReason
	}
	return c.JSON(http.StatusOK, resp)
}

// Refund settles a refund for a delivered purchase: the linked card
// is pulled from circulation and the record moves to refunded.  The
// card's serial stays consumed and supply counters never decrement,
// so a refund does not reopen a sold-out cap.
func (h *PurchaseHandler) Refund(c echo.Context) error {
	key := c.Param("key")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	rec, err := h.Svc.Store().Get(ctx, key)
	if err != nil {
		if errors.Is(err, purchase.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown idempotency key"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}

	if rec.CardID != nil {
		if err := h.Cards.Revoke(ctx, *rec.CardID); err != nil && !errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "revoke card failed"})
		}
	}
	if err := h.Svc.Store().MarkRefunded(ctx, key); err != nil {
		if errors.Is(err, purchase.ErrInvalidTransition) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "only delivered purchases can be refunded"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refund failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"idempotency_key": key, "status": "refunded"})
}
