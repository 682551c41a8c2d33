package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/coupon"
	"storefront/internal/database"
	"storefront/internal/document"
	"storefront/internal/handler"
	"storefront/internal/label"
	"storefront/internal/messaging/kafka"
	"storefront/internal/metrics"
	"storefront/internal/notify"
	"storefront/internal/payment"
	"storefront/internal/pricing"
	"storefront/internal/repository"
	"storefront/internal/router"
	"storefront/internal/service"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting storefront API server")

	// Cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			return fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	settings, err := storeSettings(cfg)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Initialize repositories
	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	returnRepo := repository.NewReturnRepository(pool, logger)
	couponRepo := repository.NewCouponRepository(pool, logger)
	outboxRepo := repository.NewOutboxRepository(pool, logger)
	ledger := repository.NewInventoryRepository(logger)

	// External collaborators
	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey, cfg.Stripe.WebhookSecret, logger)
	documents := newDocumentStore(ctx, cfg, logger)

	var sender notify.Sender
	if cfg.Email.ResendAPIKey != "" {
		sender = notify.NewResendSender(cfg.Email.ResendAPIKey, cfg.Email.From, logger)
	} else {
		logger.Warn().Msg("RESEND_API_KEY not set, emails will only be logged")
		sender = notify.NewLogSender(logger)
	}

	dispatcherOpts := []notify.Option{
		notify.WithLogger(logger),
		notify.WithAttachments(documents),
		notify.WithMetrics(m),
		notify.WithPollInterval(cfg.Outbox.PollInterval),
		notify.WithBatchSize(cfg.Outbox.BatchSize),
		notify.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		notify.WithRetryBaseDelay(cfg.Outbox.BaseBackoff),
		notify.WithSendDelay(cfg.Email.SendDelay),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID, cfg.Kafka.Topic, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize event producer: %w", err)
		}
		defer producer.Close()
		dispatcherOpts = append(dispatcherOpts, notify.WithEventPublisher(producer))
	} else {
		logger.Info().Msg("KAFKA_BROKERS not set, domain events will not be published")
	}
	dispatcher := notify.NewDispatcher(outboxRepo, sender, dispatcherOpts...)

	composer := notify.NewComposer(settings.BaseURL, settings.Currency, cfg.Email.AdminRecipients)
	notifier := service.NewNotifier(outboxRepo, composer, logger)

	// Initialize services
	validator := coupon.NewValidator(couponRepo, settings.Currency, logger)
	productService := service.NewProductService(productRepo, logger)
	checkoutService := service.NewCheckoutService(productRepo, validator, gateway, settings, logger)
	confirmationService := service.NewConfirmationService(orderRepo, productRepo, couponRepo, ledger, gateway, notifier, m, settings, logger)
	webhookService := service.NewWebhookService(gateway, confirmationService, logger)
	orderService := service.NewOrderService(orderRepo, ledger, gateway, notifier, m, logger)
	returnService := service.NewReturnService(returnRepo, orderRepo, ledger, gateway, label.NewPDFGenerator(), documents, notifier, m, settings, logger)

	// Initialize router
	mux := router.New(router.Handlers{
		Product:  handler.NewProductHandler(productService, logger),
		Checkout: handler.NewCheckoutHandler(checkoutService, confirmationService, validator, logger),
		Webhook:  handler.NewWebhookHandler(webhookService, logger),
		Order:    handler.NewOrderHandler(orderService, logger),
		Return:   handler.NewReturnHandler(returnService, logger),
	}, router.Options{
		APIKey:         cfg.Auth.APIKey,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        m,
		Gatherer:       prometheus.DefaultGatherer,
	}, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received, starting graceful shutdown")

		// Create a context with timeout for shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			// Force close
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
		return nil
	})

	return g.Wait()
}

func storeSettings(cfg *config.Config) (service.Settings, error) {
	taxRate, err := decimal.NewFromString(cfg.Store.TaxRate)
	if err != nil {
		return service.Settings{}, fmt.Errorf("invalid tax rate %q: %w", cfg.Store.TaxRate, err)
	}

	return service.Settings{
		BaseURL:           cfg.Store.BaseURL,
		Currency:          cfg.Store.Currency,
		TaxRate:           taxRate,
		LowStockThreshold: cfg.Store.LowStockThreshold,
		ReturnWindow:      time.Duration(cfg.Store.ReturnWindowDays) * 24 * time.Hour,
		Rates: pricing.ShippingRates{
			Standard:      cfg.Shipping.Standard,
			Express:       cfg.Shipping.Express,
			FreeThreshold: cfg.Shipping.FreeThreshold,
		},
		ReturnAddress: label.Address{
			Name:       cfg.Store.Name,
			Street:     cfg.Store.ReturnAddress.Street,
			City:       cfg.Store.ReturnAddress.City,
			PostalCode: cfg.Store.ReturnAddress.PostalCode,
			Country:    cfg.Store.ReturnAddress.Country,
		},
	}, nil
}

// newDocumentStore writes labels to S3 when enabled, falling back to the local directory.
func newDocumentStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) document.Store {
	local := document.NewFileStore(cfg.Store.DocumentsDir, logger)
	if !cfg.S3.Enabled {
		logger.Info().Str("dir", cfg.Store.DocumentsDir).Msg("using local file system for documents (S3 disabled)")
		return local
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.S3.Region))
	if err != nil {
		logger.Warn().
			Err(err).
			Msg("failed to load AWS configuration, falling back to local file system only")
		return local
	}

	remote := document.NewS3Store(s3.NewFromConfig(awsCfg), cfg.S3.Bucket, cfg.S3.DocumentsPrefix, logger)
	return document.NewFallbackStore(remote, local, logger)
}
