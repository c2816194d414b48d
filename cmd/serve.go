package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/regroup/internal/server"
)

// Serve runs the HTTP API until interrupted. Operations left mid-batch by an earlier process are resumed first.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	engine, err := r.setupEngine(ctx)
	if err != nil {
		return err
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	if r.config.Server.WebhookSecret == "" {
		r.logger.Warn("server.webhook_secret is empty, join events are not authenticated")
	}

	srv := server.New(server.Opts{
		Addr:   addr,
		Secret: r.config.Server.WebhookSecret,
		Engine: engine,
		Client: r.client,
		Logger: r.logger,
	})

	n, err := engine.Resume(ctx, r.client)
	if err != nil {
		return err
	}
	if n > 0 {
		r.logger.Info("resumed operations", "count", n)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go r.logProgress(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	return srv.Shutdown(context.WithoutCancel(ctx))
}

// logProgress drains engine progress into the log while the server runs.
func (r *Runner) logProgress(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case update := <-r.progress:
			r.logger.Info(update.Message, "operation", update.OperationID, "phase", update.Phase)
		}
	}
}
