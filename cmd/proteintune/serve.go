package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/samcharles93/proteintune/internal/api"
	"github.com/samcharles93/proteintune/internal/config"
	"github.com/samcharles93/proteintune/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		watch       bool
	)

	return &cli.Command{
		Name:      "serve",
		Usage:     "Serve a read-only HTTP view of the active configuration",
		ArgsUsage: "[config.yaml]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.BoolFlag{
				Name:        "watch",
				Usage:       "reload the document when it changes on disk",
				Destination: &watch,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			path, err := resolveConfigPath(configPath, cmd.Args().First())
			if err != nil {
				return err
			}
			opts, err := loadOptions(ctx)
			if err != nil {
				return err
			}
			holder, err := config.NewHolder(path, log, opts...)
			if err != nil {
				return err
			}

			server := api.NewServer(holder, planOptions()...)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)
			if watch {
				g.Go(func() error { return holder.Watch(gctx) })
			}
			g.Go(func() error {
				log.Info("starting server", "address", addr, "config", path, "watch", watch)
				sc := echo.StartConfig{
					Address: addr,
					BeforeServeFunc: func(srv *http.Server) error {
						srv.ReadHeaderTimeout = readTimeout
						return nil
					},
				}
				if err := sc.Start(gctx, e); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			return g.Wait()
		},
	}
}
