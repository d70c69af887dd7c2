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
	"time"

	"golang.org/x/sync/errgroup"

	httpadapter "github.com/aradsms/smsbridge/internal/inbound_processor_service/adapters/http"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/app"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/domain"
	"github.com/aradsms/smsbridge/internal/inbound_processor_service/provider"
	"github.com/aradsms/smsbridge/internal/platform/config"
	"github.com/aradsms/smsbridge/internal/platform/logger"
	"github.com/aradsms/smsbridge/internal/platform/messagebroker"
	"github.com/aradsms/smsbridge/internal/platform/readiness"
	"github.com/aradsms/smsbridge/internal/platform/scheduler"
)

const (
	serviceName     = "smsbridge"
	shutdownTimeout = 10 * time.Second
)

func main() {
	mainCtx, mainCancel := context.WithCancel(context.Background())
	defer mainCancel()

	cfg, err := config.Load(os.Getenv("SMSBRIDGE_CONFIG"))
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat).With("service", serviceName)
	appLogger.Info("Configuration loaded",
		"log_level", cfg.LogLevel,
		"http_port", cfg.HTTP.Port,
		"nats_url_present", cfg.NATS.URL != "",
		"instances", len(cfg.Instances),
	)

	// The local bus always carries events for the API event stream; NATS, when
	// configured, receives the same events.
	localBus := messagebroker.NewLocalBus(appLogger)
	broker, err := connectBroker(mainCtx, cfg, appLogger, localBus)
	if err != nil {
		appLogger.Error("Failed to initialize event broker", "error", err)
		os.Exit(1)
	}
	defer broker.Close()

	sched, err := scheduler.New(appLogger)
	if err != nil {
		appLogger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}

	setupOpts := readiness.Options{Attempts: cfg.Setup.RetryAttempts, Delay: cfg.Setup.RetryDelay}
	pipeline := app.NewPipeline(app.NewBrokerEventPublisher(broker, cfg.NATS.SubjectPrefix), appLogger, nil)
	registry := httpadapter.NewWebhookRegistry()
	manager := app.NewManager(pipeline, registry, sched,
		func(ic domain.InstanceConfig) app.TwilioAPI {
			return provider.NewTwilioClient(appLogger, cfg.Provider.TwilioBaseURL, ic.AccountSID, ic.AuthToken, cfg.Provider.Timeout, nil)
		},
		app.ManagerOptions{
			Store: app.StoreOptions{Retention: cfg.Store.Retention, HistoryCap: cfg.Store.HistoryCap},
			Poll:  app.PollerOptions{Interval: cfg.Poll.Interval, Lookback: cfg.Poll.Lookback},
			Setup: setupOpts,
		},
		appLogger,
	)
	sender := app.NewSender(manager, func(ic domain.InstanceConfig) app.SMSClient {
		return provider.NewMobileMessageClient(appLogger, cfg.Provider.MobileMessageBaseURL, ic.APIUsername, ic.APIPassword, cfg.Provider.Timeout, nil)
	}, appLogger)

	for _, ic := range cfg.Instances {
		if _, err := manager.Setup(mainCtx, ic); err != nil {
			if errors.Is(err, domain.ErrNotReady) {
				appLogger.Warn("Instance not ready; will retry", "instance", ic.Name, "error", err)
				continue
			}
			appLogger.Error("Instance configuration rejected", "instance", ic.Name, "error", err)
		}
	}
	stopRetry, err := manager.StartRetryJob(mainCtx, cfg.Setup.RetryEvery)
	if err != nil {
		appLogger.Error("Failed to schedule setup retries", "error", err)
		os.Exit(1)
	}

	webhooks := httpadapter.NewWebhookHandler(registry, manager, pipeline, cfg.Webhook.MaxBodyBytes, cfg.HTTP.PublicBaseURL, appLogger)
	api := httpadapter.NewAPIHandler(manager, pipeline, sender, cfg.HTTP.PublicBaseURL, appLogger)
	events := httpadapter.NewEventStreamHandler(manager, localBus, cfg.NATS.SubjectPrefix, appLogger)
	auth := httpadapter.NewAPIAuth(cfg.HTTP.APIToken, cfg.HTTP.JWTSecret, appLogger)
	if !auth.Enabled() {
		appLogger.Warn("No http.api_token or http.jwt_secret configured; the instance API will refuse every request")
	}
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           httpadapter.NewRouter(webhooks, auth, api, events),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server.RegisterOnShutdown(events.Close)

	g, groupCtx := errgroup.WithContext(mainCtx)

	g.Go(func() error {
		appLogger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	appLogger.Info("Service is ready.", "webhooks", registry.Len())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var groupErr error
	select {
	case sig := <-sigCh:
		appLogger.Info("Received termination signal", "signal", sig.String())
	case groupErr = <-watchGroup(g):
		appLogger.Error("A critical component failed, initiating shutdown", "error", groupErr)
	}

	appLogger.Info("Attempting graceful shutdown...")
	mainCancel()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error("Error during graceful shutdown of components", "error", err)
	}
	if err := stopRetry(); err != nil {
		appLogger.Warn("Failed to remove setup retry job", "error", err)
	}
	manager.Close()
	if err := sched.Stop(); err != nil {
		appLogger.Warn("Scheduler shutdown failed", "error", err)
	}

	appLogger.Info("Service shutdown complete.")
}

// connectBroker waits for NATS when a URL is configured and publishes to both
// NATS and the local bus; without a URL events stay on the local bus.
func connectBroker(ctx context.Context, cfg *config.Config, log *slog.Logger, local *messagebroker.LocalBus) (messagebroker.Publisher, error) {
	if cfg.NATS.URL == "" {
		log.Info("No NATS URL configured; events stay in-process")
		return local, nil
	}

	var client *messagebroker.NATSClient
	err := readiness.Wait(ctx, log, "nats", func(context.Context) error {
		c, err := messagebroker.NewNATSClient(cfg.NATS.URL, serviceName, log)
		if err != nil {
			return err
		}
		client = c
		return nil
	}, readiness.Options{Attempts: cfg.Setup.RetryAttempts, Delay: cfg.Setup.RetryDelay})
	if err != nil {
		return nil, err
	}
	log.Info("NATS connection initialized")
	return messagebroker.Fanout{client, local}, nil
}

// watchGroup is a helper to monitor an errgroup for early exit.
func watchGroup(g *errgroup.Group) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- g.Wait()
	}()
	return errCh
}
