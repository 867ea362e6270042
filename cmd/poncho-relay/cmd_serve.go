package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ilkoid/poncho-relay/internal/api"
	"github.com/ilkoid/poncho-relay/internal/telemetry"
	"github.com/ilkoid/poncho-relay/pkg/app"
	"github.com/ilkoid/poncho-relay/pkg/pipeline"
	"github.com/ilkoid/poncho-relay/pkg/platform"
	"github.com/ilkoid/poncho-relay/pkg/utils"
)

const shutdownTimeout = 30 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP relay (events in, replies via outbox)",
	Long: `Starts the HTTP API, the event bus dispatch loop and the janitor.

Platform adapters POST events to /v1/events and collect replies from
/v1/outbox/{umo}. SIGINT/SIGTERM stops intake and waits for running
pipelines to finish.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg, false); err != nil {
		return err
	}

	ctx, shutdown := utils.SetupGracefulShutdownWithContext()
	defer shutdown()

	stopTracing, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stopTracing(sctx); err != nil {
			utils.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	outbox := api.NewOutbox(0)
	c, err := app.Initialize(ctx, cfg, app.Options{
		Sender:    outbox,
		OnOutcome: logOutcome,
	})
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := api.NewServer(addr, api.NewRouter(c, outbox))

	errCh := make(chan error, 2)
	go func() {
		utils.Info("HTTP server listening", "addr", addr, "config", cfgPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		errCh <- c.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(sctx); serr != nil {
		utils.Warn("HTTP shutdown failed", "error", serr)
	}
	c.Shutdown(shutdownTimeout)
	utils.Info("Relay stopped")
	return err
}

func logOutcome(event *platform.MessageEvent, out pipeline.Outcome) {
	kv := []any{
		"event_id", event.ID(),
		"umo", event.UnifiedMsgOrigin(),
		"status", out.Status.String(),
		"chain_id", out.ChainID,
	}
	if out.Reason != "" {
		kv = append(kv, "reason", out.Reason)
	}
	if out.Err != nil {
		kv = append(kv, "error", out.Err)
		utils.Warn("Event processed", kv...)
		return
	}
	utils.Debug("Event processed", kv...)
}
