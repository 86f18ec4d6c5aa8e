package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"course-payments/config"
	"course-payments/database"
	adminapi "course-payments/internal/api/admin"
	billingapi "course-payments/internal/api/billing"
	usersapi "course-payments/internal/api/users"
	"course-payments/internal/api/webhooks"
	routes "course-payments/internal/app/http"
	"course-payments/internal/infra/cache"
	"course-payments/internal/infra/events"
	"course-payments/internal/infra/mail"
	"course-payments/internal/infra/paylink"
	"course-payments/internal/infra/storage"
	"course-payments/internal/infra/stripe"
	"course-payments/internal/ledger"
	"course-payments/internal/logging"
	"course-payments/internal/notify"
	"course-payments/internal/payments"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.Open(cfg.DBURL, logger)
	if err != nil {
		return err
	}
	store := ledger.New(db)

	files, err := fileStore(cfg)
	if err != nil {
		return err
	}

	var publisher notify.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := events.NewProducer(events.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		defer producer.Close()
		publisher = producer
	}
	sink := notify.New(store, mailer(cfg, logger), publisher, notify.Config{
		AdminEmail: cfg.Mail.AdminEmail,
		Timeout:    cfg.NotifyTimeout,
	}, logger.Named("notify"))

	machine := payments.NewMachine(logger.Named("machine"))

	var (
		gateways  []payments.Gateway
		verifiers []payments.Verifier
	)
	if cfg.StripeEnabled() {
		gateways = append(gateways, stripe.NewGateway(cfg.Stripe.SecretKey, cfg.Stripe.APIURL, cfg.GatewayTimeout))
		verifiers = append(verifiers, stripe.NewVerifier(cfg.Stripe.WebhookSecret))
	} else {
		logger.Warn("stripe disabled: STRIPE_SECRET_KEY or STRIPE_WEBHOOK_SECRET missing")
	}
	if cfg.PaylinkEnabled() {
		gateways = append(gateways, paylink.NewGateway(cfg.Paylink.BaseURL, cfg.Paylink.APIKey, cfg.GatewayTimeout))
		verifiers = append(verifiers, paylink.NewVerifier(cfg.Paylink.WebhookSecret))
	}

	var dedup webhooks.Deduper
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return err
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		dedup = cache.NewDeduper(rdb, 24*time.Hour)
	}

	checkout := payments.NewCheckoutService(store, machine, gateways, payments.CheckoutConfig{
		DefaultCurrency:      cfg.DefaultCurrency,
		DueDays:              cfg.InvoiceDueDays,
		AppURL:               cfg.AppURL,
		TransferInstructions: cfg.TransferInstructions,
	}, logger.Named("checkout"))
	proofs := payments.NewProofService(store, machine, files, sink, cfg.Storage.MaxProofBytes, logger.Named("proofs"))
	processor := payments.NewProcessor(store, machine, sink, logger.Named("webhooks"))

	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(logger))
	r.MaxMultipartMemory = cfg.Storage.MaxProofBytes

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.CORSOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", logging.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", logging.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Deps{
		JWTSecret: cfg.JWTSecret,
		Webhooks:  webhooks.New(verifiers, processor, dedup, logger.Named("webhooks")),
		Billing:   billingapi.New(checkout, proofs, store, cfg.PublicBaseURL, cfg.Storage.MaxProofBytes, logger),
		Admin:     adminapi.New(store, proofs),
		Users:     usersapi.New(store),
		ProofFile: billingapi.ProofFile(proofs, logger),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr), zap.Int("gateways", len(gateways)))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func fileStore(cfg *config.Config) (payments.FileStore, error) {
	if cfg.S3Enabled() {
		return storage.NewS3Store(storage.S3Config{
			Bucket:    cfg.Storage.S3Bucket,
			Region:    cfg.Storage.S3Region,
			Endpoint:  cfg.Storage.S3Endpoint,
			AccessKey: cfg.Storage.S3AccessKey,
			SecretKey: cfg.Storage.S3SecretKey,
		})
	}
	return storage.NewDiskStore(cfg.Storage.UploadDir)
}

func mailer(cfg *config.Config, logger *zap.Logger) notify.Mailer {
	switch {
	case cfg.Mail.PostmarkToken != "":
		return mail.NewPostmark(cfg.Mail.PostmarkToken, cfg.Mail.From)
	case cfg.Mail.SMTPHost != "":
		return mail.NewSMTP(cfg.Mail.SMTPHost, cfg.Mail.SMTPPort, cfg.Mail.SMTPUser, cfg.Mail.SMTPPassword)
	default:
		logger.Warn("no mail transport configured, emails are dropped")
		return mail.Discard{}
	}
}
