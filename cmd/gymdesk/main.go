package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/GymDesk/app/controllers"
	"github.com/ManuelReschke/GymDesk/app/repository"
	"github.com/ManuelReschke/GymDesk/internal/pkg/billing"
	"github.com/ManuelReschke/GymDesk/internal/pkg/cache"
	"github.com/ManuelReschke/GymDesk/internal/pkg/database"
	"github.com/ManuelReschke/GymDesk/internal/pkg/env"
	"github.com/ManuelReschke/GymDesk/internal/pkg/export"
	"github.com/ManuelReschke/GymDesk/internal/pkg/gateway"
	"github.com/ManuelReschke/GymDesk/internal/pkg/jobqueue"
	"github.com/ManuelReschke/GymDesk/internal/pkg/logging"
	"github.com/ManuelReschke/GymDesk/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/GymDesk/internal/pkg/router"
	"github.com/ManuelReschke/GymDesk/internal/pkg/s3export"
)

const shutdownTimeout = 10 * time.Second

func main() {
	env.SetupEnvFile()
	if _, err := logging.Setup(env.GetEnv("APP_ENV", "prod")); err != nil {
		log.Fatal(err)
	}
	defer logging.Sync()

	app, manager := NewApplication()
	manager.Start()

	go func() {
		addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Main] Shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Errorf("[Main] HTTP shutdown: %v", err)
	}
	manager.Stop()
}

// NewApplication wires storage, the gateway client and the payment workflow
// into a fiber app. The returned manager runs the job queue and the stale
// order sweep once started.
func NewApplication() (*fiber.App, *jobqueue.Manager) {
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	gw, err := gateway.NewClientFromEnv()
	if err != nil {
		log.Fatalf("[Main] Gateway configuration: %v", err)
	}

	var uploader export.Uploader
	s3cfg, err := s3export.LoadConfig()
	if err != nil {
		log.Fatalf("[Main] S3 export configuration: %v", err)
	}
	if s3cfg.IsEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		client, err := s3export.NewClient(ctx, s3cfg)
		cancel()
		if err != nil {
			log.Errorf("[Main] S3 export disabled: %v", err)
		} else {
			uploader = client
		}
	}
	exporter := export.NewExporter(repos.Order, uploader)

	manager := jobqueue.GetManager()
	service := billing.NewService(billing.Dependencies{
		Orders:   repos.Order,
		Members:  repos.Member,
		Events:   repos.WebhookEvent,
		Gateway:  gw,
		Queue:    manager.GetQueue(),
		Throttle: cache.NewThrottle(cache.GetClient(), "payment:poll:", time.Duration(env.GetEnvInt("PAYMENT_POLL_THROTTLE_SECONDS", 3))*time.Second),
	}, billing.LoadConfig())
	manager.Bind(service, exporter)

	payments := controllers.NewPaymentController(service, exporter, manager.GetQueue(), controllers.LoadPaymentControllerConfig())
	payments.SetCounters(counter.New(cache.GetClient()))

	app := fiber.New(fiber.Config{
		AppName:   "GymDesk",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logging.RequestLogger(logging.Log))

	// fiber metrics
	if password := env.GetEnv("METRICS_PASSWORD", ""); password != "" {
		app.Get("/metrics", basicauth.New(basicauth.Config{
			Users: map[string]string{
				env.GetEnv("METRICS_USER", "admin"): password,
			},
		}), monitor.New(monitor.Config{Title: "GymDesk Metrics"}))
	} else {
		log.Warn("[Main] METRICS_PASSWORD not set, /metrics disabled")
	}

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: findBasePath() + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	// ROUTER
	opts := router.ApiRouterOptionsFromEnv()
	opts.LimiterStorage = router.NewLimiterStorage()
	router.InstallRouter(app, payments, opts)

	return app, manager
}

// findBasePath locates the project root from the usual working directories.
func findBasePath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "public/docs"); err == nil {
			return path
		}
	}
	log.Fatal("[Main] Could not find project root directory")
	return ""
}
