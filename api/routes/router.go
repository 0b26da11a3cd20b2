package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gokselkaptan/takas-app-sub004/api/controllers"
	"github.com/gokselkaptan/takas-app-sub004/api/middleware"
	"github.com/gokselkaptan/takas-app-sub004/internal/disputes"
	"github.com/gokselkaptan/takas-app-sub004/internal/notifications"
	"github.com/gokselkaptan/takas-app-sub004/internal/swaps"
	"github.com/gokselkaptan/takas-app-sub004/internal/valor"
	pkgAuth "github.com/gokselkaptan/takas-app-sub004/pkg/auth"
	"github.com/gokselkaptan/takas-app-sub004/pkg/config"
	"github.com/gokselkaptan/takas-app-sub004/pkg/logger"
	"github.com/gokselkaptan/takas-app-sub004/pkg/redis"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP pinger,
	redisClient *redis.Client,
	swapService swaps.Service,
	disputeService disputes.Service,
	valorService valor.Service,
	notificationService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	valorReadPolicy := middleware.NewRateLimitPolicy(
		"valor",
		cfg.ValorRateLimit.Window,
		cfg.ValorRateLimit.UserLimit,
		cfg.ValorRateLimit.IPLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Get("/api/public/ping", controllers.PublicPing())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/swaps", func(r chi.Router) {
			r.Post("/", controllers.SwapCreate(swapService, logg))
			r.Get("/", controllers.SwapList(swapService, logg))
			r.Route("/{swapId}", func(r chi.Router) {
				r.Get("/", controllers.SwapDetail(swapService, logg))
				r.Post("/accept", controllers.SwapAccept(swapService, logg))
				r.Post("/delivery", controllers.SwapSetupDelivery(swapService, logg))
				r.Post("/redeem", controllers.SwapRedeemDelivery(swapService, logg))
				r.Post("/confirm", controllers.SwapConfirm(swapService, logg))
				r.Post("/cancel", controllers.SwapCancel(swapService, logg))
				r.Post("/cancel-request", controllers.SwapRequestMutualCancel(swapService, logg))
				r.Post("/cancel-response", controllers.SwapRespondMutualCancel(swapService, logg))
			})
		})

		r.Route("/disputes", func(r chi.Router) {
			r.Post("/", controllers.DisputeOpen(disputeService, logg))
			r.Route("/{disputeId}", func(r chi.Router) {
				r.Get("/", controllers.DisputeDetail(disputeService, logg))
				r.Post("/evidence", controllers.DisputeSubmitEvidence(disputeService, logg))
			})
		})

		r.Route("/valor", func(r chi.Router) {
			r.Use(middleware.RateLimit(valorReadPolicy, redisClient, logg))
			r.Get("/balance", controllers.ValorBalance(valorService, logg))
			r.Get("/history", controllers.ValorHistory(valorService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(pkgAuth.RoleAdmin, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/ping", controllers.AdminPing())

		r.Route("/disputes", func(r chi.Router) {
			r.Get("/", controllers.AdminDisputeQueue(disputeService, logg))
			r.Post("/{disputeId}/resolve", controllers.AdminDisputeResolve(disputeService, logg))
		})
		r.Route("/swaps/{swapId}", func(r chi.Router) {
			r.Post("/force-complete", controllers.AdminSwapForceComplete(swapService, logg))
			r.Post("/force-cancel", controllers.AdminSwapForceCancel(swapService, logg))
		})
	})

	return r
}
