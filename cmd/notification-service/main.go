// cmd/notification-service/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"autoshop-notifications/internal/audit"
	"autoshop-notifications/internal/common/config"
	"autoshop-notifications/internal/common/database"
	"autoshop-notifications/internal/common/logger"
	"autoshop-notifications/internal/common/observability"
	"autoshop-notifications/internal/dispatcher"
	"autoshop-notifications/internal/enrich"
	"autoshop-notifications/internal/models"
	"autoshop-notifications/internal/providers"
	"autoshop-notifications/internal/push"
	"autoshop-notifications/internal/store"
	"autoshop-notifications/internal/templates"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting notification service...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	obs := observability.New("notification-service")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var rds *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		rds, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rds.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer rds.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Elasticsearch (optional) ---
	var esClient *database.ElasticsearchClient
	if cfg.Database.Elasticsearch.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping()
		}, 10, 2*time.Second, zapLog, "Elasticsearch connection")

		if err != nil {
			zapLog.Warn("elasticsearch unavailable, audit entries will only go to postgres", zap.Error(err))
			esClient = nil
		} else {
			zapLog.Info("Elasticsearch connected successfully")
		}
	}

	// --- Stores ---
	notifStore := store.NewNotificationStore(pg.DB)
	logStore := store.NewLogStore(pg.DB)
	subStore := store.NewSubscriptionStore(pg.DB)
	tmplStore := store.NewTemplateStore(pg.DB)
	entityStore := store.NewEntityStore(pg.DB)

	// --- Providers ---
	emailCfg := cfg.Email
	pushCfg := cfg.WebPush
	if !cfg.App.IsProduction() && (!emailCfg.Sandbox || !pushCfg.Sandbox) {
		zapLog.Info("Non-production environment, forcing provider sandbox mode",
			zap.String("environment", cfg.App.Environment))
		emailCfg.Sandbox = true
		pushCfg.Sandbox = true
	}
	if !emailCfg.Sandbox && emailCfg.Provider == "smtp" && emailCfg.SMTP.Host == "" {
		zapLog.Warn("SMTP host not configured, forcing email sandbox mode")
		emailCfg.Sandbox = true
	}

	providerRetries := cfg.Dispatcher.ProviderRetries
	backoff := config.GetDuration(cfg.Dispatcher.BackoffBaseMs)

	var emailProvider providers.Provider
	if emailCfg.Provider == "ses" {
		emailProvider, err = providers.NewSESProvider(ctx, emailCfg, providerRetries, backoff, log)
		if err != nil {
			zapLog.Warn("SES unavailable, falling back to SMTP provider", zap.Error(err))
			emailProvider = providers.NewSMTPProvider(emailCfg, providerRetries, backoff, log)
		}
	} else {
		emailProvider = providers.NewSMTPProvider(emailCfg, providerRetries, backoff, log)
	}

	if !pushCfg.Sandbox && (pushCfg.VAPIDPublicKey == "" || pushCfg.VAPIDPrivateKey == "") {
		zapLog.Warn("VAPID keys not configured, forcing push sandbox mode")
		pushCfg.Sandbox = true
	}
	pushProvider := providers.NewPushProvider(pushCfg, providerRetries, backoff, log)
	inAppProvider := providers.NewInAppProvider(rds.Client, false, log)

	providerSet := map[models.Channel]providers.Provider{
		models.ChannelEmail: emailProvider,
		models.ChannelPush:  pushProvider,
		models.ChannelInApp: inAppProvider,
	}

	// --- Delivery engine ---
	auditWriter := audit.NewWriter(logStore, esRawClient(esClient), cfg.Database.Elasticsearch.LogIndex, log)
	enricher := enrich.NewEnricher(entityStore, log)
	resolver := templates.NewResolver(tmplStore, rds.Client, config.GetDuration(cfg.Dispatcher.TemplateCacheTTLMs), log)

	disp := dispatcher.New(cfg.Dispatcher, cfg.Channels, cfg.WebPush.MaxFailures, dispatcher.Dependencies{
		Lookup:        entityStore,
		Enricher:      enricher,
		Resolver:      resolver,
		Notifications: notifStore,
		Subscriptions: subStore,
		Providers:     providerSet,
		Audit:         auditWriter,
		Observability: obs,
		Logger:        log,
	})
	disp.Start(ctx)
	zapLog.Info("Dispatcher started",
		zap.Int("workers", cfg.Dispatcher.Workers),
		zap.Int("queueSize", cfg.Dispatcher.QueueSize),
	)

	// --- Push registry + API ---
	retention := time.Duration(cfg.Cleanup.RetentionDays) * 24 * time.Hour
	registry := push.NewRegistry(subStore, pushProvider, entityStore, cfg.WebPush.MaxFailures, retention, log)
	pushAPI := push.NewAPI(registry, cfg.WebPush.VAPIDPublicKey, log)

	pushServer := &http.Server{
		Addr:    cfg.HTTP.PushAPIAddress,
		Handler: pushAPI.Routes(),
	}
	go func() {
		zapLog.Info("Push API listening", zap.String("addr", cfg.HTTP.PushAPIAddress))
		if err := pushServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Push API server failed", zap.Error(err))
		}
	}()

	// --- Cleanup sweep ---
	cleanupCtx, cancelCleanup := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(config.GetDuration(cfg.Cleanup.IntervalMs))
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if _, err := registry.CleanupInvalidSubscriptions(cleanupCtx); err != nil {
					zapLog.Error("Subscription cleanup failed", zap.Error(err))
				}
			}
		}
	}()

	// --- Health & Metrics Server ---
	go func() {
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "healthy",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]string{
				"status": "ready",
				"time":   time.Now().Format(time.RFC3339),
			})
		})
		http.Handle("/metrics", promhttp.Handler())
		zapLog.Info("Health/Metrics server listening", zap.String("addr", cfg.HTTP.MetricsAddress))
		if err := http.ListenAndServe(cfg.HTTP.MetricsAddress, nil); err != nil {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining dispatcher...")
	cancelCleanup()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := pushServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping push API server", zap.Error(err))
	}

	disp.Stop()

	zapLog.Info("Notification service stopped gracefully")
}

// esRawClient unwraps the database wrapper for components that take the
// Elasticsearch client directly. Returns nil when ES is not configured.
func esRawClient(c *database.ElasticsearchClient) *elasticsearch.Client {
	if c == nil {
		return nil
	}
	return c.Client
}
