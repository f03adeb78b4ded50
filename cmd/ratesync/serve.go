package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"restakeRates/internal/ops"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadSyncConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	runOnStart, _ := cmd.Flags().GetBool("run-on-start")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := buildSyncApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	status := &ops.RunStatus{}
	syncOnce := func() {
		runCtx, cancel := context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
		summary, err := app.engine.Run(runCtx)
		status.Record(summary, err)
		if err != nil {
			logger.Error("sync run failed", zap.Error(err))
		}
	}

	scheduler := ops.NewScheduler(logger)
	entryID, err := scheduler.AddFunc(cfg.Schedule, syncOnce)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           ops.NewRouter(app.store, status),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.MetricsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("scheduler start", zap.String("schedule", cfg.Schedule), zap.Bool("run_on_start", runOnStart))
	scheduler.Start()
	if runOnStart {
		go scheduler.Entry(entryID).WrappedJob.Run()
	}

	select {
	case <-ctx.Done():
	case err = <-serverErr:
		logger.Error("http server failed", zap.Error(err))
	}

	logger.Info("shutting down")
	<-scheduler.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("http server shutdown", zap.Error(shutdownErr))
	}
	return err
}
