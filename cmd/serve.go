package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/azad-hub/internal/adapters/billing"
	"github.com/bnema/azad-hub/internal/adapters/host/bridge"
	"github.com/bnema/azad-hub/internal/adapters/transport/ws"
	"github.com/bnema/azad-hub/internal/application"
	"github.com/bnema/azad-hub/internal/logging"
	"github.com/bnema/azad-hub/internal/observability"
	"github.com/bnema/azad-hub/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the coordination hub",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, app)
		},
	}

	cmd.Flags().String("listen", "", "Listen address (overrides listen_addr)")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn, error (overrides log.level)")
	_ = app.cfg.BindPFlag(keyListenAddr, cmd.Flags().Lookup("listen"))
	_ = app.cfg.BindPFlag(keyLogLevel, cmd.Flags().Lookup("log-level"))

	return cmd
}

func runServe(ctx context.Context, app *app) (err error) {
	logger, err := logging.New(logging.Config{
		Level:  app.cfg.GetString(keyLogLevel),
		Format: app.cfg.GetString(keyLogFormat),
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.MustNewMetrics(registry)

	host := bridge.New(bridge.Config{
		Token:   app.cfg.GetString(keyHostToken),
		Timeout: app.cfg.GetDuration(keyHostTimeout),
	}, logger)
	defer func() { err = multierr.Append(err, host.Close()) }()

	billingClient, err := billing.NewClient(billing.Config{
		BaseURL:     app.cfg.GetString(keyBillingBaseURL),
		ExtensionID: app.cfg.GetString(keyBillingExtID),
		APIKeyRef:   app.cfg.GetString(keyBillingKeyRef),
	}, app.credentials, host, app.httpClient)
	if err != nil {
		return fmt.Errorf("wire billing client: %w", err)
	}

	hub, err := application.NewHub(application.HubDeps{
		Entitlement: billingClient,
		Settings:    app.settings,
		Billing:     billingClient,
		Host:        host,
		Clock:       ports.SystemClock{},
		Logger:      logger,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("wire hub: %w", err)
	}

	server, err := ws.NewServer(ws.Config{
		ListenAddr:     app.cfg.GetString(keyListenAddr),
		AllowedOrigins: app.cfg.GetStringSlice(keyCORSOrigins),
		PeerOutboxSize: app.cfg.GetInt(keyPeerOutbox),
	}, hub, ws.Options{
		HostHandler: host,
		Gatherer:    registry,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("wire transport: %w", err)
	}

	logger.Info("starting azad hub",
		zap.String("listen_addr", app.cfg.GetString(keyListenAddr)),
		zap.String("settings_path", app.settings.Path()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return server.ListenAndServe(gctx) })

	return g.Wait()
}
