package router // route registration for the minting engine API

import (
	"github.com/labstack/echo/v4"

	"github.com/samuraifrenchienft/music-legends-engine/internal/handler"
	"github.com/samuraifrenchienft/music-legends-engine/internal/middleware"
	"github.com/samuraifrenchienft/music-legends-engine/internal/ratelimit"
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers the operator auth endpoints under /v1/auth.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
}

// RegisterEngine registers the purchase intake, supply telemetry and
// card endpoints.  The purchase intake limits per buyer inside the
// handler (the webhook gateway hides the buyer behind one IP); the
// burn route limits per client here.  Supply reads are public so
// storefront UIs can poll them.
func RegisterEngine(e *echo.Echo, p *handler.PurchaseHandler, s *handler.SupplyHandler, cards *handler.CardHandler, limiter *ratelimit.Limiter) {
	v1 := e.Group("/v1")

	v1.POST("/purchases", p.Create)
	v1.GET("/purchases/:key", p.Get)

	v1.GET("/supply/status", s.Status)
	v1.GET("/supply/can_mint", s.CanMint)
	v1.GET("/limits/:action", s.LimitStatus)

	v1.GET("/cards/:id", cards.Get)
	v1.GET("/users/:id/cards", cards.ListByOwner)
	v1.POST("/cards/:id/burn", cards.Burn, middleware.RateLimit(limiter, "open_pack"))
	v1.POST("/trades", cards.Trade)
}

// RegisterAdmin registers the operator-only surface: season
// lifecycle, dead-letter operations, refunds and card revocation.
// Everything here sits behind JWT auth plus an ADMIN role check.
func RegisterAdmin(e *echo.Echo, jwtSecret string, seasons *handler.SeasonHandler, queues *handler.QueueHandler, cards *handler.CardHandler, purchases *handler.PurchaseHandler) {
	admin := e.Group("/v1/admin")
	admin.Use(middleware.JWTAuth(jwtSecret))
	admin.Use(middleware.RequireRole("ADMIN"))

	admin.POST("/seasons", seasons.Create)
	admin.GET("/seasons", seasons.List)
	admin.GET("/seasons/:id", seasons.Get)
	admin.POST("/seasons/:id/transition", seasons.Transition)

	admin.GET("/queues/:queue/dead_letters", queues.DeadLetters)
	admin.POST("/queues/:queue/dead_letters/:id/replay", queues.Replay)
	admin.DELETE("/queues/:queue/dead_letters", queues.Purge)

	admin.POST("/purchases/:key/refund", purchases.Refund)
	admin.POST("/cards/:id/revoke", cards.Revoke)
}
