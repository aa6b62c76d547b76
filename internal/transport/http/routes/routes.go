package routes

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Redactedcraft/Redactedcraft-sub000/internal/infra/config"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/transport/http/handlers"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/transport/http/middleware"
	"github.com/Redactedcraft/Redactedcraft-sub000/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Tickets    *usecase.TicketService
	Allowlist  *usecase.AllowlistService
	Identities *usecase.IdentityService
	Presence   *usecase.PresenceService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}

	ticketAuth := middleware.RequireTicket(deps.Services.Tickets)
	adminAuth := middleware.RequireAdmin(deps.Config.Admin.Token)

	healthHandler := handlers.NewHealthHandler(deps.Services.Allowlist)
	r.GET("/health", healthHandler.Status)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ticketHandler := handlers.NewTicketHandler(deps.Services.Tickets)
	identityHandler := handlers.NewIdentityHandler(deps.Services.Identities)
	friendsHandler := handlers.NewFriendsHandler(deps.Services.Identities)
	presenceHandler := handlers.NewPresenceHandler(deps.Services.Presence, deps.Services.Identities)
	adminHandler := handlers.NewAdminHandler(deps.Services.Allowlist, deps.Services.Identities)

	issueHandlers := append(rateLimitRule(deps, "ticket_issue_ip", deps.Config.RateLimit.TicketMaxAttempts, time.Minute), ticketHandler.Issue)
	r.POST("/ticket", issueHandlers...)
	r.POST("/ticket/validate", ticketHandler.Validate)

	identity := r.Group("/identity")
	{
		identity.GET("/me", ticketAuth, identityHandler.Me)
		identity.POST("/claim", ticketAuth, identityHandler.Claim)
		identity.POST("/resolve", ticketAuth, identityHandler.Resolve)

		recovery := identity.Group("/recovery")
		recovery.POST("/rotate", ticketAuth, identityHandler.RotateRecovery)

		// Transfer authenticates via the recovery code, not a ticket.
		transferHandlers := append(rateLimitRule(deps, "recovery_transfer_ip", deps.Config.RateLimit.TransferMaxAttempts, time.Hour), identityHandler.Transfer)
		recovery.POST("/transfer", transferHandlers...)
	}

	friends := r.Group("/friends")
	friends.Use(ticketAuth)
	{
		friends.GET("/me", friendsHandler.List)
		friends.POST("/add", friendsHandler.Add)
		friends.POST("/remove", friendsHandler.Remove)
		friends.POST("/respond", friendsHandler.Respond)
		friends.POST("/block", friendsHandler.Block)
		friends.POST("/unblock", friendsHandler.Unblock)
	}

	presence := r.Group("/presence")
	presence.Use(ticketAuth)
	{
		presence.POST("/upsert", presenceHandler.Upsert)
		presence.POST("/query", presenceHandler.Query)
		presence.POST("/invite", presenceHandler.SendInvite)
		presence.POST("/invite/respond", presenceHandler.RespondInvite)
	}

	admin := r.Group("/admin")
	admin.Use(adminAuth)
	{
		admin.POST("/allowlist/runtime", adminHandler.RuntimeOverride)
		admin.POST("/allowlist/hash", adminHandler.PinHash)
		admin.POST("/identity/reassign", adminHandler.Reassign)
		admin.POST("/identity/remove", adminHandler.Remove)
	}

	return r
}

func rateLimitRule(deps Dependencies, name string, limit int, defaultWindow time.Duration) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil || limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = defaultWindow
	}

	rule := middleware.ThrottleRule{
		Name:   name,
		Limit:  limit,
		Window: window,
		Key:    middleware.ByClientIP(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.Enforce(rule)}
}
