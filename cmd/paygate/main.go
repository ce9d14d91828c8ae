package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"paygate/internal/common/database"
	"paygate/internal/common/metrics"
	"paygate/internal/common/middleware"
	natsclient "paygate/internal/common/nats"
	"paygate/internal/orders"
	"paygate/internal/payment"
	"paygate/internal/payment/api"
	"paygate/internal/payment/domain"
	"paygate/internal/providers/mpgs"
	"paygate/migrations"
)

// Config holds service configuration
type Config struct {
	Port        int    `envconfig:"PAYGATE_PORT" default:"8090"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	Database database.Config
	NATS     natsclient.Config
	Redis    middleware.RedisConfig
	Gateway  mpgs.Config
	Payment  PaymentConfig
}

// PaymentConfig holds the merchant's checkout settings
type PaymentConfig struct {
	MerchantName   string        `envconfig:"PAYMENT_MERCHANT_NAME"`
	Capture        bool          `envconfig:"PAYMENT_CAPTURE" default:"true"`
	CheckoutMethod string        `envconfig:"PAYMENT_CHECKOUT_METHOD" default:"hostedcheckout"`
	ThreeDS        string        `envconfig:"PAYMENT_THREEDS" default:"none"`
	CheckoutMode   string        `envconfig:"PAYMENT_HOSTED_CHECKOUT_MODE" default:"redirect"`
	OrderPrefix    string        `envconfig:"PAYMENT_ORDER_PREFIX"`
	SaveCards      bool          `envconfig:"PAYMENT_SAVE_CARDS" default:"false"`
	ClaimTTL       time.Duration `envconfig:"PAYMENT_CLAIM_TTL" default:"2m"`

	DisplayShipping      string `envconfig:"PAYMENT_DISPLAY_SHIPPING" default:"HIDE"`
	DisplayBilling       string `envconfig:"PAYMENT_DISPLAY_BILLING_ADDRESS" default:"HIDE"`
	DisplayPaymentTerms  string `envconfig:"PAYMENT_DISPLAY_PAYMENT_TERMS" default:"HIDE"`
	DisplayCustomerEmail string `envconfig:"PAYMENT_DISPLAY_CUSTOMER_EMAIL" default:"HIDE"`

	CallbackBaseURL  string `envconfig:"PAYMENT_CALLBACK_BASE_URL" required:"true"`
	OrderReceivedURL string `envconfig:"PAYMENT_ORDER_RECEIVED_URL" required:"true"`
	CheckoutPayURL   string `envconfig:"PAYMENT_CHECKOUT_PAY_URL" required:"true"`

	AdminAPIKey string `envconfig:"ADMIN_API_KEY" required:"true"`
}

func (c PaymentConfig) flow() (domain.Flow, error) {
	checkout, err := domain.ParseCheckout(c.CheckoutMethod)
	if err != nil {
		return domain.Flow{}, err
	}
	threeDS, err := domain.ParseThreeDSMode(c.ThreeDS)
	if err != nil {
		return domain.Flow{}, err
	}
	return domain.Flow{Checkout: checkout, ThreeDS: threeDS}, nil
}

func (c PaymentConfig) display() (domain.DisplayControl, error) {
	var d domain.DisplayControl
	for _, f := range []struct {
		raw string
		dst *domain.DisplayMode
	}{
		{c.DisplayShipping, &d.Shipping},
		{c.DisplayBilling, &d.BillingAddress},
		{c.DisplayPaymentTerms, &d.PaymentTerms},
		{c.DisplayCustomerEmail, &d.CustomerEmail},
	} {
		m, err := domain.ParseDisplayMode(f.raw)
		if err != nil {
			return domain.DisplayControl{}, err
		}
		*f.dst = m
	}
	return d.WithDefaults(), nil
}

func main() {
	// Load configuration
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to process config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)

	// Create context that listens for shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	flow, err := cfg.Payment.flow()
	if err != nil {
		logger.Error("invalid checkout configuration", "error", err)
		os.Exit(1)
	}
	display, err := cfg.Payment.display()
	if err != nil {
		logger.Error("invalid display configuration", "error", err)
		os.Exit(1)
	}

	// Connect to database
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.URL, migrations.FS, logger); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
	}
	db, err := database.New(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS
	nc, err := natsclient.New(cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	if err := nc.EnsureStream(ctx, cfg.NATS); err != nil {
		logger.Error("failed to ensure stream", "error", err)
		os.Exit(1)
	}
	publisher := natsclient.NewPublisher(nc, cfg.NATS.SubjectPrefix, logger)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	paymentMetrics := metrics.New()
	if err := paymentMetrics.Register(registry); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	// Gateway client
	gateway, err := mpgs.NewClient(cfg.Gateway, logger, mpgs.WithObserver(paymentMetrics))
	if err != nil {
		logger.Error("failed to create gateway client", "error", err)
		os.Exit(1)
	}

	// Create services
	orderStore := orders.NewPostgresStore(db)
	cardVault := orders.NewPostgresCardVault(db)
	orchestrator, err := payment.NewOrchestrator(payment.Config{
		MerchantID:     gateway.MerchantID(),
		MerchantName:   cfg.Payment.MerchantName,
		Capture:        cfg.Payment.Capture,
		Flow:           flow,
		CheckoutMode:   cfg.Payment.CheckoutMode,
		DisplayControl: display,
		OrderPrefix:    cfg.Payment.OrderPrefix,
		SaveCards:      cfg.Payment.SaveCards,
		ClaimTTL:       cfg.Payment.ClaimTTL,
		URLs: payment.URLs{
			CallbackBase:  cfg.Payment.CallbackBaseURL,
			OrderReceived: cfg.Payment.OrderReceivedURL,
			CheckoutPay:   cfg.Payment.CheckoutPayURL,
		},
		CheckoutJSURL: gateway.CheckoutJSURL(),
		SessionJSURL:  gateway.SessionJSURL(),
	}, orderStore, gateway,
		payment.WithTokenVault(cardVault),
		payment.WithPublisher(publisher),
		payment.WithMetrics(paymentMetrics),
		payment.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create orchestrator", "error", err)
		os.Exit(1)
	}

	// Create handlers
	handlerOpts := []api.Option{
		api.WithAdminKey(cfg.Payment.AdminAPIKey),
		api.WithOrders(orderStore),
		api.WithCards(cardVault),
	}
	if cfg.Redis.URL != "" {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("invalid redis URL", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()

		limiter := middleware.NewRedisRateLimiter(redisClient, "paygate:ratelimit", cfg.Redis.RequestsPerWindow, cfg.Redis.Window)
		if err := limiter.Ping(ctx); err != nil {
			logger.Warn("redis unreachable, rate limiter will fail open", "error", err)
		}
		handlerOpts = append(handlerOpts, api.WithRateLimiter(limiter))
	}
	paymentHandler := api.NewHandler(orchestrator, logger, handlerOpts...)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.HealthCheck(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Ready check
	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := nc.HealthCheck(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// API routes
	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Mount("/", paymentHandler.Routes())
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      otelhttp.NewHandler(r, "paygate"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting paygate service",
			"port", cfg.Port,
			"environment", cfg.Environment,
			"flow", flow.String(),
			"gateway_host", gateway.Host(),
			"capture", cfg.Payment.Capture,
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	logger.Info("server stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
