package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/samuraifrenchienft/music-legends-engine/internal/model"
	"github.com/samuraifrenchienft/music-legends-engine/internal/repository"
	"github.com/samuraifrenchienft/music-legends-engine/internal/supply"
)

// SeasonHandler is the admin surface for season lifecycle: create in
// planning, seed tier caps, walk the forward-only state machine.
type SeasonHandler struct {
	Seasons *repository.SeasonRepo
	Ledger  *supply.Ledger
}

func NewSeasonHandler(seasons *repository.SeasonRepo, ledger *supply.Ledger) *SeasonHandler {
	return &SeasonHandler{Seasons: seasons, Ledger: ledger}
}

type artistCapReq struct {
	Tier     string `json:"tier"`
	ArtistID string `json:"artist_id"`
	Max      uint64 `json:"max"`
}

type createSeasonReq struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	SupplyTarget uint64            `json:"supply_target"`
	TierCaps     map[string]uint64 `json:"tier_caps"`   // tier name -> max
	ArtistCaps   []artistCapReq    `json:"artist_caps"` // explicit per-artist overrides
}

// Create registers a season in planning state and seeds its per-tier
// caps.  Caps are fixed at creation; there is no endpoint to raise
// them later.
func (h *SeasonHandler) Create(c echo.Context) error {
	var req createSeasonReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.ID == "" || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "id and name required"})
	}
	caps := make(map[model.Tier]uint64, len(req.TierCaps))
	for name, max := range req.TierCaps {
		tier, ok := model.ParseTier(name)
		if !ok {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid tier " + name})
		}
		caps[tier] = max
	}
	for _, ac := range req.ArtistCaps {
		if _, ok := model.ParseTier(ac.Tier); !ok || ac.ArtistID == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid artist cap entry"})
		}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Seasons.Create(ctx, req.ID, req.Name, req.SupplyTarget); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "season already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create season failed"})
	}
	if err := h.Ledger.Seed(ctx, req.ID, caps); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "seed caps failed"})
	}
	for _, ac := range req.ArtistCaps {
		tier, _ := model.ParseTier(ac.Tier)
		if err := h.Ledger.SeedArtist(ctx, req.ID, tier, ac.ArtistID, ac.Max); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "seed artist caps failed"})
		}
	}
	return c.JSON(http.StatusCreated, echo.Map{"id": req.ID, "state": model.SeasonPlanning})
}

// List returns all seasons.
func (h *SeasonHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	seasons, err := h.Seasons.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "list seasons failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"seasons": seasons})
}

// Get returns one season.
func (h *SeasonHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Seasons.GetByID(ctx, c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "season not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "lookup failed"})
	}
	return c.JSON(http.StatusOK, s)
}

type transitionReq struct {
	State string `json:"state"`
}

// Transition advances a season's state.  Only forward moves are
// accepted (planning → active → ended → legacy); anything else is a
// conflict.
func (h *SeasonHandler) Transition(c echo.Context) error {
	var req transitionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	next := model.SeasonState(req.State)
	if !next.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid state"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Seasons.Transition(ctx, c.Param("id"), next); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "season not found"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "transition not allowed"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transition failed"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id"), "state": next})
}
