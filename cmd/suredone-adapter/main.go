package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/dropified/suredone-adapter/internal/api"
	"github.com/dropified/suredone-adapter/internal/creds"
	"github.com/dropified/suredone-adapter/internal/exports"
	"github.com/dropified/suredone-adapter/internal/publisher"
	"github.com/dropified/suredone-adapter/internal/queue"
	"github.com/dropified/suredone-adapter/internal/rate"
	internalsecrets "github.com/dropified/suredone-adapter/internal/secrets"
	"github.com/dropified/suredone-adapter/internal/store"
	"github.com/dropified/suredone-adapter/internal/suredone"
	"github.com/dropified/suredone-adapter/internal/tracking"
	"github.com/dropified/suredone-adapter/pkg/config"
	"github.com/dropified/suredone-adapter/pkg/logger"
	"github.com/dropified/suredone-adapter/pkg/model"
	"github.com/dropified/suredone-adapter/pkg/secrets"
	"github.com/dropified/suredone-adapter/pkg/utils"
)

// exportDonePublisher routes export.completed events to their configured subject.
type exportDonePublisher struct {
	pub     *publisher.Publisher
	subject string
}

func (e exportDonePublisher) PublishExportCompleted(ctx context.Context, evt model.ExportCompletedEvent) error {
	return e.pub.PublishExportCompleted(ctx, e.subject, evt)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	logg := logger.S()
	logg.Info("starting [suredone-adapter]...")
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- AWS Secrets Manager provider ---
	awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
	if err != nil {
		logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
	}

	// --- Admin (partner) credential resolver ---
	adminResolver := internalsecrets.NewResolver(awsProvider, cfg.AdminSecretName, cfg.CacheTTL, logg.Desugar())
	admin, err := adminResolver.Resolve(ctx)
	if err != nil {
		logg.Fatalw("failed to resolve admin credentials", "error", err)
	}
	if cfg.SureDonePartnerID == "" {
		cfg.SureDonePartnerID = admin.PartnerID
	}

	adminClient := suredone.NewAdminClient(logg.Desugar(), cfg.SureDoneBaseURL,
		admin.APIUser, admin.APIToken, cfg.SureDonePartnerID)

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Publisher ---
	pub, err := publisher.New(nc, cfg.OrderEventSubject, "SUREDONE_EVENTS")
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: 10,
		Burst:             20,
		Cooldown:          1 * time.Second,
	})

	// --- Store (Redis + Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init store", "error", err)
	}

	// --- Credential store ---
	credStore := creds.NewPGStore(st.PG, logg.Desugar())

	// --- SureDone HTTP client ---
	sdClient := suredone.NewClient(logg.Desugar(), suredone.ClientConfig{
		BaseURL:        cfg.SureDoneBaseURL,
		PartnerID:      cfg.SureDonePartnerID,
		HTTPTimeout:    cfg.SureDoneHTTPTimeout,
		OptionsTimeout: cfg.OptionsTimeout,
		OptionsTTL:     cfg.CacheTTL,
	}, rateMgr, credStore, adminClient)

	// --- Export job queue (AMQP) ---
	jobPub, err := queue.NewPublisher(cfg.AMQPURL, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init AMQP publisher", "error", err)
	}

	// --- Export worker + consumer ---
	donePub := exportDonePublisher{pub: pub, subject: cfg.ExportDoneSubject}
	worker := exports.NewWorker(st, exports.NewPGOrderQuerier(st.PG), donePub, logg.Desugar())
	consumer, err := queue.NewConsumer(cfg.AMQPURL, cfg.ExportJobQueue, worker.Handle, logg.Desugar())
	if err != nil {
		logg.Fatalw("failed to init AMQP consumer", "error", err)
	}
	if err := consumer.Start(ctx); err != nil {
		logg.Fatalw("failed to start AMQP consumer", "error", err)
	}

	// --- Export scheduler ---
	scheduler := exports.NewScheduler(st, jobPub, cfg.ExportJobQueue, cfg.ExportScanInterval, logg.Desugar())
	go scheduler.Start(ctx)

	// --- Fulfillment tracking poller ---
	poller := tracking.NewPoller(sdClient, st, pub, credStore, cfg.TrackingPollInterval, logg.Desugar())
	go poller.Start(ctx)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	handler := api.NewHandler(logg.Desugar(), sdClient, adminClient, credStore, st, jobPub, cfg.ExportJobQueue)
	api.RegisterRoutes(app, nc, st, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow("[suredone-adapter] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"tracking_poll_interval", cfg.TrackingPollInterval,
		"export_scan_interval", cfg.ExportScanInterval)

	<-ctx.Done()
	logg.Info("shutting down [suredone-adapter]...")

	poller.Stop()
	scheduler.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := consumer.Close(); err != nil {
		logg.Warnw("amqp.consumer_close_failed", "error", err)
	}
	if err := jobPub.Close(); err != nil {
		logg.Warnw("amqp.publisher_close_failed", "error", err)
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}
