package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"medcred/internal/credential"
	credhandler "medcred/internal/credential/handler"
	"medcred/internal/decision"
	decisionhandler "medcred/internal/decision/handler"
	decisionmetrics "medcred/internal/decision/metrics"
	"medcred/internal/platform/config"
	"medcred/internal/platform/httpserver"
	"medcred/internal/platform/kafka"
	"medcred/internal/platform/logger"
	"medcred/internal/platform/metrics"
	"medcred/internal/platform/ratelimit"
	"medcred/internal/platform/redis"
	"medcred/internal/platform/tracing"
	"medcred/internal/registry"
	"medcred/internal/registry/browser"
	registrymetrics "medcred/internal/registry/metrics"
	httptransport "medcred/internal/transport/http"
	"medcred/internal/verification"
	verifhandler "medcred/internal/verification/handler"
	verifmetrics "medcred/internal/verification/metrics"
	"medcred/internal/verification/provider"
	"medcred/internal/verification/webhook"
	"medcred/pkg/platform/audit/publisher"
	auditkafka "medcred/pkg/platform/audit/store/kafka"
	auditmemory "medcred/pkg/platform/audit/store/memory"
	"medcred/pkg/platform/circuit"
	"medcred/pkg/platform/middleware/auth"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	if err := run(); err != nil {
		slog.Error("medcred exited with error", "error", err)
		os.Exit(1)
	}
}

func run() (runErr error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Server.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Cleanups run in reverse order once run returns, including on setup
	// errors, so the audit buffer drains before Kafka flushes.
	closeWithin := func(name string, fn func(context.Context) error) {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := fn(closeCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("%s: %w", name, err))
		}
	}

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer closeWithin("tracing shutdown", shutdownTracing)

	// Audit: memory always, Kafka when brokers are configured.
	auditStores := auditkafka.Tee{auditmemory.NewInMemoryStore()}
	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafka.NewProducer(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic, kafka.WithLogger(log))
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer closeWithin("kafka flush", producer.Close)
		auditStores = append(auditStores, auditkafka.New(producer))
	}
	auditor := publisher.NewPublisher(auditStores, publisher.WithAsyncBuffer(1024), publisher.WithLogger(log))
	defer auditor.Close()

	redisClient, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis: %w", err)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Registry lookup over a pool of browser tabs.
	regMetrics := registrymetrics.New()
	pool, err := browser.NewPool(ctx, browser.Config{
		Size:       cfg.Registry.PoolSize,
		Headless:   cfg.Registry.Headless,
		ChromePath: cfg.Registry.ChromePath,
	}, browser.WithLogger(log), browser.WithMetrics(regMetrics))
	if err != nil {
		return fmt.Errorf("start browser pool: %w", err)
	}
	defer pool.Close()
	searcher, err := browser.NewSearcher(pool, browser.DefaultSearchConfig(cfg.Registry.SearchURL, cfg.Registry.NavTimeout), log)
	if err != nil {
		return fmt.Errorf("init registry searcher: %w", err)
	}
	registrySvc, err := registry.New(searcher,
		registry.WithLogger(log),
		registry.WithMetrics(regMetrics),
		registry.WithMaxRetries(cfg.Registry.MaxRetries),
		registry.WithBreaker(circuit.New("registry",
			circuit.WithFailureThreshold(cfg.Registry.BreakerFailures),
			circuit.WithCooldown(cfg.Registry.BreakerCooldown),
		)),
	)
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	credentialSvc, err := credential.New(registrySvc,
		credential.WithLogger(log),
		credential.WithAuditPublisher(auditor),
	)
	if err != nil {
		return fmt.Errorf("init credential service: %w", err)
	}

	// Biometric verification sessions.
	providerClient, err := provider.NewClient(provider.Config{
		BaseURL:     cfg.Verification.ProviderBaseURL,
		APIKey:      cfg.Verification.ProviderAPIKey,
		WorkflowID:  cfg.Verification.WorkflowID,
		CallbackURL: cfg.Verification.CallbackURL,
		Timeout:     cfg.Verification.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("init verification provider: %w", err)
	}
	verMetrics := verifmetrics.New()
	manager, err := verification.NewManager(providerClient,
		verification.WithLogger(log),
		verification.WithMetrics(verMetrics),
		verification.WithAuditPublisher(auditor),
		verification.WithPollInterval(cfg.Verification.PollInterval),
		verification.WithSessionTTL(cfg.Verification.SessionTTL),
		verification.WithMaxPollErrors(cfg.Verification.MaxPollErrors),
	)
	if err != nil {
		return fmt.Errorf("init verification manager: %w", err)
	}

	decisionSvc, err := decision.NewService(credentialSvc, manager,
		decision.WithLogger(log),
		decision.WithMetrics(decisionmetrics.New()),
		decision.WithAuditPublisher(auditor),
	)
	if err != nil {
		return fmt.Errorf("init decision service: %w", err)
	}

	deps := httptransport.Deps{
		Logger:  log,
		Metrics: metrics.New(),
		Auth:    auth.RequireServiceToken(auth.NewServiceTokens(cfg.Auth.SigningKey, cfg.Auth.Issuer, cfg.Auth.Audience), log),
		Health:  map[string]httptransport.HealthCheck{},
		Protected: []httptransport.Registrar{
			credhandler.New(credentialSvc, log),
			verifhandler.New(manager, log),
			decisionhandler.New(decisionSvc, log),
			httptransport.NewAuditHandler(auditor, log),
		},
	}
	if redisClient != nil {
		deps.Health["redis"] = redisClient.Health
	}

	if cfg.Verification.WebhookSecret != "" {
		var deliveries webhook.DeliveryStore = webhook.NewMemoryDeliveryStore(cfg.Redis.DeliveryTTL)
		var limits ratelimit.Store = ratelimit.NewMemoryStore()
		if redisClient != nil {
			deliveries = webhook.NewRedisDeliveryStore(redisClient.Client, cfg.Redis.DeliveryTTL)
			limits = ratelimit.NewRedisStore(redisClient.Client)
		}
		hooks, err := webhook.New([]byte(cfg.Verification.WebhookSecret), manager,
			webhook.WithLogger(log),
			webhook.WithMetrics(verMetrics),
			webhook.WithAuditPublisher(auditor),
			webhook.WithDeliveryStore(deliveries),
			webhook.WithMaxSkew(cfg.Verification.WebhookMaxSkew),
		)
		if err != nil {
			return fmt.Errorf("init webhook handler: %w", err)
		}
		deps.Public = append(deps.Public, hooks)
		deps.PublicLimit = ratelimit.PerIP(limits, cfg.Verification.WebhookRate, cfg.Verification.WebhookWindow, log)
	} else {
		log.Warn("VERIFICATION_WEBHOOK_SECRET not set; sessions are updated by polling only")
	}

	srv := httpserver.New(cfg.Server.Addr, httptransport.NewRouter(deps))

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting medcred", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			log.Error("server error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	// The manager emits final audit events, so it stops before the deferred
	// publisher close.
	if err := manager.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("verification shutdown: %w", err))
	}
	log.Info("medcred stopped")
	return errors.Join(errs...)
}
