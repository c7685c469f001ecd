package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/000Volk000/TubeTap"
	"github.com/000Volk000/TubeTap/internal/server"
)

const shutdownTimeout = 5 * time.Second

func (a *application) serveCommand() *cli.Command {
	return &cli.Command{
		Name:         "serve",
		Usage:        "accept downloads over HTTP and stream their progress",
		OnUsageError: onUsageError,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Value:   defaultListen,
				Usage:   "listen on `ADDR`",
				EnvVars: []string{"TUBETAP_LISTEN"},
			},
			&cli.IntFlag{
				Name:  "queue",
				Value: server.DefaultQueueSize,
				Usage: "maximum number of waiting downloads",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := a.config(c)
			if err != nil {
				return err
			}
			d, err := a.downloader(c, cfg, nil)
			if err != nil {
				return err
			}
			store, err := a.openHistory(c)
			if err != nil {
				return err
			}
			defer store.Close()

			logger := tubetap.Logger(c.Context)
			srv, err := server.New(server.Options{
				Downloader: d,
				History:    store,
				Logger:     logger,
				QueueSize:  c.Int("queue"),
			})
			if err != nil {
				return failure("%v", err)
			}
			listener, err := net.Listen("tcp", c.String("listen"))
			if err != nil {
				return failure("failed to listen: %v", err)
			}
			logger.Sugar().Infow("serving", "address", listener.Addr().String(), "base_dir", cfg.BaseDir)
			if err := serve(c.Context, srv, listener); err != nil {
				return failure("%v", err)
			}
			return nil
		},
	}
}

// serve runs the download worker and the HTTP server until ctx is cancelled, then shuts both down.
func serve(ctx context.Context, srv *server.Server, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	g.Go(func() error {
		if err := httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// Progress streams only end when the publisher closes
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
