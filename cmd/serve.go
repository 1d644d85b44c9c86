package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prensa-labs/newsgraph/internal/server"
	"github.com/prensa-labs/newsgraph/internal/worker"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ingress server and worker pool",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initService(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		pool := worker.NewPool(worker.Config{
			Workers:   cfg.Workers.Count,
			QueueSize: cfg.Workers.QueueSize,
		}, env.Orchestrator, env.Metrics)
		// Workers run on their own context so accepted units survive the
		// signal and get drained by Stop below.
		pool.Start(context.Background())

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.New(pool, version).Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		// Graceful shutdown: stop accepting requests, then drain the queue.
		// ListenAndServe returns as soon as Shutdown is called, so the drain
		// below waits for shutdownDone before stopping the pool; otherwise
		// in-flight handlers could still be enqueueing.
		shutdownDone := make(chan struct{})
		go func() {
			defer close(shutdownDone)
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", port),
			zap.Int("workers", pool.Workers()),
			zap.Int("queue_capacity", pool.Capacity()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		<-shutdownDone

		drainCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Workers.DrainTimeout)*time.Second)
		defer cancel()
		if err := pool.Stop(drainCtx); err != nil {
			zap.L().Warn("worker pool drain incomplete", zap.Error(err))
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
