package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/zapdesk/zapdesk/core/config"
	"github.com/zapdesk/zapdesk/core/database"
	domainIntegration "github.com/zapdesk/zapdesk/domains/integration"
	"github.com/zapdesk/zapdesk/infrastructure/cache"
	infraIntegration "github.com/zapdesk/zapdesk/infrastructure/integration"
	"github.com/zapdesk/zapdesk/infrastructure/media"
	"github.com/zapdesk/zapdesk/infrastructure/storage"
	"github.com/zapdesk/zapdesk/infrastructure/valkey"
	"github.com/zapdesk/zapdesk/pkg/tasks"
	"github.com/zapdesk/zapdesk/pkg/utils"
	"github.com/zapdesk/zapdesk/ui/rest"
	"github.com/zapdesk/zapdesk/ui/rest/middleware"
	"github.com/zapdesk/zapdesk/usecase"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Run the webhook intake and admin HTTP server",
	Run:   restServer,
}

func init() {
	rootCmd.AddCommand(restCmd)
}

func restServer(_ *cobra.Command, _ []string) {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalln("Failed to load config:", err)
	}
	cfg.App.ServerID = utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages)

	if err := utils.CreateFolder(cfg.Paths.Storages, cfg.Paths.Media); err != nil {
		logrus.Fatalln(err)
	}

	db, err := database.NewDatabase(cfg)
	if err != nil {
		logrus.Fatalln("Failed to open database:", err)
	}

	ctx := context.Background()

	// Repositories
	channelRepo := storage.NewChannelGormRepository(db)
	contactRepo := storage.NewContactGormRepository(db)
	conversationRepo := storage.NewConversationGormRepository(db)
	messageRepo := storage.NewMessageGormRepository(db)
	ticketRepo := storage.NewTicketGormRepository(db)
	assignmentRepo := storage.NewAssignmentGormRepository(db)
	engagementRepo := storage.NewEngagementGormRepository(db)
	subscriptionRepo := storage.NewSubscriptionGormRepository(db)

	for _, init := range []func(context.Context) error{
		channelRepo.Init, contactRepo.Init, conversationRepo.Init,
		messageRepo.Init, ticketRepo.Init, assignmentRepo.Init,
		engagementRepo.Init, subscriptionRepo.Init,
	} {
		if err := init(ctx); err != nil {
			logrus.Fatalln("Failed to migrate schema:", err)
		}
	}

	// Optional Valkey-backed caching
	var previewCache *cache.PreviewCache
	if cfg.Database.ValkeyEnabled {
		vkClient, err := valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			logrus.Warnf("Valkey unavailable, running without cache: %v", err)
		} else {
			previewCache = cache.NewPreviewCache(vkClient)
			defer vkClient.Close()
		}
	}

	// Background task pool
	runner := tasks.NewRunner(cfg.Tasks.Workers, cfg.Tasks.QueueSize)
	runner.Start(ctx)

	// Outbound adapters
	var publisher domainIntegration.IEventPublisher = infraIntegration.NoopPublisher{}
	if cfg.Broker.Enabled {
		amqpPub, err := infraIntegration.NewAmqpPublisher(cfg.Broker.URL, cfg.Broker.Exchange)
		if err != nil {
			logrus.Warnf("Broker unavailable, events will not be published: %v", err)
		} else {
			publisher = amqpPub
		}
	}
	dispatcher := infraIntegration.NewDispatcher(cfg.Webhook, subscriptionRepo)
	analysisClient := infraIntegration.NewAnalysisClient(cfg.Analysis)

	mediaStore, err := media.NewStore(cfg.Paths.Media)
	if err != nil {
		logrus.Fatalln("Failed to prepare media storage:", err)
	}

	// Services
	events := usecase.NewEventEmitter(publisher, dispatcher, runner)
	identityService := usecase.NewIdentityService(contactRepo)
	assignmentService := usecase.NewAssignmentService(assignmentRepo, channelRepo, conversationRepo)
	conversationService := usecase.NewConversationService(conversationRepo, channelRepo, assignmentService, events)
	ticketService := usecase.NewTicketService(ticketRepo, messageRepo, conversationRepo, channelRepo, events)
	triggerService := usecase.NewTriggerService(
		engagementRepo, messageRepo, ticketRepo, analysisClient,
		runner, cfg.Analysis.MessageThreshold, cfg.Feedback.Window,
	)
	webhookService := usecase.NewWebhookService(
		channelRepo, identityService, conversationService, ticketService,
		triggerService, messageRepo, conversationRepo, mediaStore, previewCache, events,
	)
	healthService := usecase.NewHealthService(db, runner)

	// HTTP server
	fiberConfig := fiber.Config{
		AppName:      "Zapdesk Engine " + cfg.App.Version,
		Network:      "tcp",
		ServerHeader: "Hidden",
	}
	if len(cfg.App.TrustedProxies) > 0 {
		fiberConfig.EnableTrustedProxyCheck = true
		fiberConfig.TrustedProxies = cfg.App.TrustedProxies
		fiberConfig.ProxyHeader = fiber.HeaderXForwardedFor
	}
	app := fiber.New(fiberConfig)

	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.App.CorsAllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.Recovery())
	app.Use(limiter.New(limiter.Config{
		Max:        1000,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	}))
	if cfg.App.Debug {
		app.Use(logger.New())
	}

	base := app.Group(cfg.App.BasePath)
	rest.InitRestWebhook(base, webhookService)
	rest.InitRestHealth(base, healthService)
	rest.InitRestAdmin(base, channelRepo, assignmentRepo, subscriptionRepo, conversationRepo, ticketService, previewCache)

	base.All("/api/*", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "API endpoint not found",
			"path":  c.Path(),
		})
	})

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Termination signal received, shutting down gracefully...")
		if err := app.Shutdown(); err != nil {
			logrus.Errorf("[REST] Error during Fiber shutdown: %v", err)
		}
		runner.Stop()
		if err := publisher.Close(); err != nil {
			logrus.Errorf("[REST] Error closing broker connection: %v", err)
		}
	}()

	logrus.Infof("[REST] Server %s listening on :%s", cfg.App.ServerID, cfg.App.Port)
	if err := app.Listen(":" + cfg.App.Port); err != nil {
		logrus.Fatalln("Failed to start:", err.Error())
	}
}
