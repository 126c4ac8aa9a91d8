package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/GymDesk/app/controllers"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter mounts the provider webhook and the staff API. The webhook is
// installed first so it never passes through the API key middleware.
func InstallRouter(app *fiber.App, payments *controllers.PaymentController, opts ApiRouterOptions) {
	setup(app, NewWebhookRouter(payments), NewApiRouter(payments, opts))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
