package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/anjiri1684/peptide_shop/bot"
	config "github.com/anjiri1684/peptide_shop/configs"
	"github.com/anjiri1684/peptide_shop/database"
	"github.com/anjiri1684/peptide_shop/jobs"
	"github.com/anjiri1684/peptide_shop/logger"
	"github.com/anjiri1684/peptide_shop/monitoring"
	"github.com/anjiri1684/peptide_shop/notifications"
	"github.com/anjiri1684/peptide_shop/payments"
	"github.com/anjiri1684/peptide_shop/routes"
	"github.com/anjiri1684/peptide_shop/services"
	orderfeed "github.com/anjiri1684/peptide_shop/websocket"
)

const tierBackfillBatch = 500

func main() {
	if err := logger.Init(os.Getenv("APP_ENV") == "production"); err != nil {
		log.Fatalf("🔥 failed to initialise logger: %v", err)
	}
	defer logger.Log.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal("failed to load configuration", zap.Error(err))
	}

	db, err := database.ConnectDB(cfg.DatabaseURL)
	if err != nil {
		logger.Log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Log.Fatal("failed to migrate database", zap.Error(err))
	}
	if err := database.SeedAdmin(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logger.Log.Fatal("failed to seed admin account", zap.Error(err))
	}

	now := func() time.Time { return time.Now().In(cfg.Location) }

	gateway := payments.NewRobokassa(cfg.Robokassa)
	pricing := services.NewPricingService(cfg.Pricing, cfg.Catalog)
	referrals := services.NewReferralService(db, cfg.RootReferrerIDs, now)
	ledger := services.NewLedgerService(db, now)
	settlement := services.NewSettlementService(db, referrals, cfg.Commission)
	buckets := services.NewBucketService(db, pricing)
	checkout := services.NewCheckoutService(referrals, buckets, ledger, gateway)
	callbacks := services.NewCallbackService(db, ledger, settlement, buckets, gateway.Password2(), cfg.AdminIDs)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var notifier notifications.Notifier
	if cfg.BotToken != "" {
		api, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			logger.Log.Fatal("failed to connect to telegram", zap.Error(err))
		}
		logger.Log.Info("telegram bot authorised", zap.String("username", api.Self.UserName))
		notifier = notifications.NewTelegramNotifier(api)

		botName := cfg.BotName
		if botName == "" {
			botName = api.Self.UserName
		}
		shopBot := bot.New(api, bot.Dependencies{
			Referrals: referrals,
			Buckets:   buckets,
			Checkout:  checkout,
			Catalog:   cfg.Catalog,
			BotName:   botName,
			AdminIDs:  cfg.AdminIDs,
		})

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := api.GetUpdatesChan(u)
		go func() {
			shopBot.Run(ctx, updates)
			api.StopReceivingUpdates()
		}()
	} else {
		logger.Log.Warn("BOT_TOKEN not set, telegram bot and notifications disabled")
	}

	c := cron.New(cron.WithLocation(cfg.Location))
	if _, err := c.AddFunc("*/10 * * * *", jobs.BackfillReferralTiers(referrals, tierBackfillBatch)); err != nil {
		logger.Log.Fatal("failed to schedule tier backfill", zap.Error(err))
	}
	c.Start()
	logger.Log.Info("cron job for referral tier backfill scheduled")

	hub := orderfeed.NewHub()
	go hub.Run(ctx)

	app := fiber.New(fiber.Config{
		Prefork:       false,
		AppName:       "Peptide Shop",
		CaseSensitive: true,
		StrictRouting: true,
		ReadTimeout:   15 * time.Second,
		WriteTimeout:  15 * time.Second,
		IdleTimeout:   60 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}

			logger.Log.Error("request failed",
				zap.Error(err),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
			)
			return c.Status(code).JSON(fiber.Map{
				"status":  "error",
				"code":    code,
				"message": err.Error(),
			})
		},
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, Sec-WebSocket-Key, Sec-WebSocket-Version",
		AllowMethods:  "GET, POST, OPTIONS",
		ExposeHeaders: "Content-Length, Authorization",
		MaxAge:        86400,
	}))

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   cfg.Location.String(),
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(monitoring.Middleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	routes.Setup(app, &routes.Dependencies{
		DB:          db,
		JWTSecret:   cfg.JWTSecret,
		RedirectURL: cfg.RedirectURL,
		Now:         now,
		Referrals:   referrals,
		Ledger:      ledger,
		Callbacks:   callbacks,
		Notifier:    notifier,
		Hub:         hub,
	})

	go func() {
		<-ctx.Done()
		logger.Log.Info("shutting down")
		cronCtx := c.Stop()
		<-cronCtx.Done()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Log.Error("server shutdown failed", zap.Error(err))
		}
	}()

	logger.Log.Info("server is running", zap.String("port", cfg.Port))
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Log.Fatal("server failed to start", zap.Error(err))
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
