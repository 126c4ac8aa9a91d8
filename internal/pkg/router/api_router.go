package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/GymDesk/app/controllers"
	apiv1 "github.com/ManuelReschke/GymDesk/internal/api/v1"
	"github.com/ManuelReschke/GymDesk/internal/pkg/env"
	"github.com/ManuelReschke/GymDesk/internal/pkg/middleware"
)

type ApiRouterOptions struct {
	// StaffKeyHashes are SHA-256 hashes of the accepted staff API keys.
	StaffKeyHashes []string
	// RateLimit is the number of requests per client IP per minute.
	RateLimit int
	// LimiterStorage keeps limiter counters; nil keeps them in memory.
	LimiterStorage fiber.Storage
}

// ApiRouterOptionsFromEnv reads STAFF_API_KEYS and API_RATE_LIMIT_PER_MINUTE.
func ApiRouterOptionsFromEnv() ApiRouterOptions {
	return ApiRouterOptions{
		StaffKeyHashes: middleware.StaffKeysFromEnv(),
		RateLimit:      env.GetEnvInt("API_RATE_LIMIT_PER_MINUTE", 120),
	}
}

type ApiRouter struct {
	payments *controllers.PaymentController
	opts     ApiRouterOptions
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        h.opts.RateLimit,
		Expiration: time.Minute,
		Storage:    h.opts.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited", "message": "Too many requests"})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, staff only
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware(h.opts.StaffKeyHashes))
	apiServer := apiv1.NewAPIServer(h.payments)
	apiv1.RegisterHandlers(v1, apiServer)
}

func NewApiRouter(payments *controllers.PaymentController, opts ApiRouterOptions) *ApiRouter {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 120
	}
	return &ApiRouter{payments: payments, opts: opts}
}
