package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/samuraifrenchienft/music-legends-engine/internal/middleware"
	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
	"github.com/samuraifrenchienft/music-legends-engine/internal/ratelimit"
	"github.com/samuraifrenchienft/music-legends-engine/internal/supply"
)

// SupplyHandler exposes read-only supply telemetry: per-tier counts
// and the advisory can-mint probe used by storefront UIs.
type SupplyHandler struct {
	Ledger        *supply.Ledger
	Limiter       *ratelimit.Limiter
	DefaultSeason string
}

func NewSupplyHandler(ledger *supply.Ledger, limiter *ratelimit.Limiter, defaultSeason string) *SupplyHandler {
	return &SupplyHandler{Ledger: ledger, Limiter: limiter, DefaultSeason: defaultSeason}
}

func (h *SupplyHandler) season(c echo.Context) string {
	if s := c.QueryParam("season"); s != "" {
		return s
	}
	return h.DefaultSeason
}

// Status returns current/max/remaining per configured tier for a
// season.
func (h *SupplyHandler) Status(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	seasonID := h.season(c)
	tiers, err := h.Ledger.Status(ctx, seasonID)
	if err != nil {
		if errors.Is(err, supply.ErrSeasonNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown season"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "supply status failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"season_id": seasonID, "tiers": tiers})
}

// CanMint is the advisory probe: it reports whether a mint for the
// tier/artist would currently succeed, without reserving anything.
// The answer can go stale immediately under contention; the ledger's
// atomic reservation remains the only authority.
func (h *SupplyHandler) CanMint(c echo.Context) error {
	tier := model.Tier(c.QueryParam("tier"))
	if !tier.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tier"})
	}
	artistID := c.QueryParam("artist_id")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	check, err := h.Ledger.CanMint(ctx, h.season(c), tier, artistID)
	if err != nil {
		if errors.Is(err, supply.ErrSeasonNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown season"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cap check failed"})
	}
	return c.JSON(http.StatusOK, check)
}

// LimitStatus reports the caller's sliding-window usage for one
// action without consuming a slot.
func (h *SupplyHandler) LimitStatus(c echo.Context) error {
	if h.Limiter == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "rate limiting disabled"})
	}
	action := c.Param("action")
	if _, ok := h.Limiter.Rule(action); !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown action"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	actor := "ip:" + c.RealIP()
	if id, ok := middleware.UserID(c); ok {
		actor = fmt.Sprintf("user:%d", id)
	}
	st, err := h.Limiter.GetStatus(ctx, actor, action)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "limit status failed"})
	}
	return c.JSON(http.StatusOK, st)
}
