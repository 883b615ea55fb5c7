package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// serve starts the pipelines when configured to and serves the control API
// until ctx is cancelled. Pipelines are stopped before it returns.
func (app *application) serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", app.config.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return app.serveListener(ctx, ln)
}

func (app *application) serveListener(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if app.config.Pipelines.AutoStart {
		app.pipelines.StartAll()
		app.logger.Info("pipelines started", "count", len(app.pipelines.All()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		app.logger.Info("starting server", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		app.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	err := g.Wait()
	app.pipelines.StopAll()
	app.logger.Info("server shutdown completed")
	return err
}
