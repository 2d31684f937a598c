package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/panel-provisioner/db"
	"github.com/thatsimonsguy/panel-provisioner/internal/api"
	"github.com/thatsimonsguy/panel-provisioner/internal/config"
	"github.com/thatsimonsguy/panel-provisioner/internal/datadog"
	"github.com/thatsimonsguy/panel-provisioner/internal/discovery"
	"github.com/thatsimonsguy/panel-provisioner/internal/env"
	"github.com/thatsimonsguy/panel-provisioner/internal/logging"
	"github.com/thatsimonsguy/panel-provisioner/internal/notifications"
	"github.com/thatsimonsguy/panel-provisioner/internal/transport"
	"github.com/thatsimonsguy/panel-provisioner/system/shutdown"
	"github.com/thatsimonsguy/panel-provisioner/system/startup"
)

func main() {
	cfg := config.Load()
	env.Cfg = &cfg
	logging.Init(cfg.LogLevel, cfg.LogFile)
	datadog.InitMetrics()
	notifications.Init()

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Bool("dry_run", cfg.DryRun).
		Msg("Starting panel provisioner")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	discoverer := discovery.NewDiscoverer(time.Duration(cfg.DiscoveryTimeoutSeconds)*time.Second, nil)
	panel, err := startup.ResolvePanel(ctx, &cfg, discoverer.Discover)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to find a panel")
		return
	}

	sess, err := startup.Prepare(&cfg, panel)
	if err != nil {
		shutdown.ShutdownWithError(err, "Failed to apply pin configuration")
		return
	}

	var dbConn *sql.DB
	if cfg.DBPath != "" {
		dbConn, err = db.Open(cfg.DBPath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.DBPath).Msg("Push history disabled")
			dbConn = nil
		} else {
			shutdown.OnExit(dbConn)
		}
	}

	client := transport.New(panel.URLBase, time.Duration(cfg.RequestTimeoutSeconds)*time.Second)
	if err := startup.Deliver(ctx, &cfg, sess, client, dbConn, os.Stdout); err != nil {
		notifications.Notify("Panel provisioning failed", fmt.Sprintf("%s at %s: %v", panel.ModelName, panel.URLBase, err))
		shutdown.ShutdownWithError(err, "Failed to push settings to panel")
		return
	}
	if !cfg.DryRun {
		notifications.Notify("Panel provisioned", fmt.Sprintf("%s at %s, %d pins assigned", panel.ModelName, panel.URLBase, sess.Store.Assigned()))
	}

	if cfg.ListenPort <= 0 {
		shutdown.Shutdown()
		return
	}

	server := api.NewServer(sess.Store, client, cfg.Endpoint, cfg.Token)
	go func() {
		if err := server.Start(cfg.ListenPort); err != nil {
			shutdown.ShutdownWithError(err, "API server stopped")
		}
	}()

	<-ctx.Done()
	shutdown.Shutdown()
}
